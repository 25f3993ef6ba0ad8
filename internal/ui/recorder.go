package ui

import (
	"sync"
)

// Recorder is a Host for tests. It records every call and answers
// prompts from a queue, falling back to the prompt default.
type Recorder struct {
	mu       sync.Mutex
	notices  []Notice
	prompts  []Prompt
	answers  []string
	pickerN  int
	pickPath string
	opened   []string
}

// Notice is a recorded Notify call.
type Notice struct {
	Kind    Kind
	Message string
}

// Queue appends answers for upcoming prompts.
func (r *Recorder) Queue(answers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, answers...)
}

// SetPick sets the path PromptOpenFile returns.
func (r *Recorder) SetPick(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pickPath = path
}

func (r *Recorder) Notify(kind Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Kind: kind, Message: message})
}

func (r *Recorder) Confirm(p Prompt) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, p)
	if len(r.answers) == 0 {
		return p.Default
	}
	a := r.answers[0]
	r.answers = r.answers[1:]
	return a
}

func (r *Recorder) PromptOpenFile(string, []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pickerN++
	if r.pickPath == "" {
		return "", ErrNoInput
	}
	return r.pickPath, nil
}

func (r *Recorder) OpenDocument(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, path)
	return nil
}

// Notices returns the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Prompts returns the recorded prompts.
func (r *Recorder) Prompts() []Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Prompt(nil), r.prompts...)
}

// PickerCalls returns how often PromptOpenFile was called.
func (r *Recorder) PickerCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pickerN
}

// Opened returns the paths passed to OpenDocument.
func (r *Recorder) Opened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}
