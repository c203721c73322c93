package program

import "strings"

// MaxNameLen is the longest file name a listing slot holds. Scan skips
// longer names.
const MaxNameLen = 31

var programExtensions = []string{"gcode", "gco", "gc"}

// IsProgramFile reports whether name carries a G-code extension. Only the
// text after the last dot counts and case is ignored.
func IsProgramFile(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return false
	}
	ext := name[i+1:]
	for _, want := range programExtensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// FileList is a fixed-capacity listing with a wrapping cursor.
type FileList struct {
	names    []string
	capacity int
	cursor   int
}

// NewFileList returns an empty list holding at most capacity names.
func NewFileList(capacity int) *FileList {
	if capacity < 1 {
		capacity = 1
	}
	return &FileList{names: make([]string, 0, capacity), capacity: capacity}
}

// Add appends name. It returns false when the list is full.
func (l *FileList) Add(name string) bool {
	if len(l.names) >= l.capacity {
		return false
	}
	l.names = append(l.names, name)
	return true
}

// Clear empties the list and resets the cursor.
func (l *FileList) Clear() {
	l.names = l.names[:0]
	l.cursor = 0
}

// Count returns the number of names.
func (l *FileList) Count() int { return len(l.names) }

// Capacity returns the maximum number of names.
func (l *FileList) Capacity() int { return l.capacity }

// NameAt returns the i'th name.
func (l *FileList) NameAt(i int) (string, bool) {
	if i < 0 || i >= len(l.names) {
		return "", false
	}
	return l.names[i], true
}

// Names returns a copy of all names.
func (l *FileList) Names() []string {
	return append([]string(nil), l.names...)
}

// Cursor returns the selected index, 0 when empty.
func (l *FileList) Cursor() int { return l.cursor }

// SetCursor selects i if it is in range.
func (l *FileList) SetCursor(i int) bool {
	if i < 0 || i >= len(l.names) {
		return false
	}
	l.cursor = i
	return true
}

// Navigate moves the cursor by dir with wraparound.
func (l *FileList) Navigate(dir int) {
	n := len(l.names)
	if n == 0 {
		return
	}
	l.cursor = ((l.cursor+dir)%n + n) % n
}

// IndexOf finds name ignoring case.
func (l *FileList) IndexOf(name string) int {
	for i, n := range l.names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}
