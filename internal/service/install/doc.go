// Package install decides whether the locally installed agent is current
// against the latest release and performs the fetch, stage and swap sequence
// when it is not.
//
// The installation root holds the transient downloaded archive, a private
// staging directory during a swap, and the live target/ subdirectory. After a
// completed pass the target holds exactly one coherent version's files.
package install
