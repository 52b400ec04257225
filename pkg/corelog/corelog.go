/*
Copyright 2024 The pgblock Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package corelog wraps the standard log package with a component
// prefix, the way the rest of the pack's packages tag their own
// log.Printf calls by hand.
package corelog

import (
	"io"
	"log"
	"os"
)

// Logger logs lines tagged with a component name.
type Logger struct {
	l *log.Logger
}

// New returns a Logger that writes to w (os.Stderr if w is nil),
// prefixing every line with "component: ".
func New(component string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{l: log.New(w, component+": ", log.LstdFlags)}
}

// Printf logs a formatted line.
func (lg *Logger) Printf(format string, args ...any) {
	lg.l.Printf(format, args...)
}

// Println logs the given values space-separated.
func (lg *Logger) Println(args ...any) {
	lg.l.Println(args...)
}
