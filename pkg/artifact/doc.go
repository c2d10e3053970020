// Package artifact turns a finished tutoring transcript into its two outputs:
// a prose report on the student's reasoning and a virtual patient persona that
// can seed the next exercise.
package artifact
