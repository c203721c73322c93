// Copyright (C) 2026  CNCETI contributors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package storage provides the two removable-storage transports program
// files are read from: a disk exposed as a directory tree and a USB
// mass-storage drive behind a CH376 bridge chip.
package storage

import (
	"path"
	"strings"
)

// Transport is a removable storage device holding program files. At most
// one file is open at a time.
type Transport interface {
	// Name identifies the device in logs and errors.
	Name() string

	// Ready probes the device. It must be cheap enough to call from a
	// periodic presence check.
	Ready() bool

	// List calls fn with the name of every regular file in dir until fn
	// returns false.
	List(dir string, fn func(name string) bool) error

	// Open opens the file at p for reading, closing any open file first.
	Open(p string) error

	// Close closes the open file. It is safe to call with nothing open.
	Close() error

	// Read returns the next bytes of the open file and io.EOF once the
	// file is exhausted. Line-oriented transports return at most one line
	// (terminator included) per call.
	Read(buf []byte) (int, error)

	// Rewind moves the read position back to the start of the open file.
	Rewind() error

	// Size and Position are in bytes; both are 0 with nothing open.
	Size() int64
	Position() int64

	// LineOriented reports whether Read delivers whole lines.
	LineOriented() bool
}

// JoinPath joins a listing directory and a file name into a slash
// separated path rooted at "/".
func JoinPath(dir, name string) string {
	return path.Join("/", dir, name)
}

// fsPath converts a "/"-rooted path into an io/fs path.
func fsPath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "."
	}
	return p
}
