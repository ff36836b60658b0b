// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import "github.com/Thermoquad/esslink/pkg/radio"

// RecvBuffer owns at most one receive chain while a message is being
// assembled. It never holds two independent chains.
type RecvBuffer struct {
	head *radio.Buffer
}

// Append takes ownership of frag. With nothing pending the fragment starts
// the chain; otherwise it is concatenated onto it.
func (r *RecvBuffer) Append(frag *radio.Buffer) {
	if frag == nil {
		return
	}
	if r.head == nil {
		r.head = frag
		return
	}
	r.head.Concat(frag)
}

// TakeAndClear hands the pending chain to the caller, who must free it
func (r *RecvBuffer) TakeAndClear() *radio.Buffer {
	b := r.head
	r.head = nil
	return b
}

// Release frees the pending chain, if any. Safe to call repeatedly. An
// error means the chain had already been freed elsewhere.
func (r *RecvBuffer) Release() error {
	if r.head == nil {
		return nil
	}
	err := r.head.Free()
	r.head = nil
	return err
}

// Pending reports whether a chain is held
func (r *RecvBuffer) Pending() bool {
	return r.head != nil
}

// Len returns the byte length of the pending chain
func (r *RecvBuffer) Len() int {
	if r.head == nil {
		return 0
	}
	return r.head.Len(false)
}
