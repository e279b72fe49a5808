// Package pipeline runs caption jobs from submission to a terminal status.
//
// The Engine accepts a job, persists it, and drives it on its own goroutine
// through extract, transcribe, overlay and finalize. Progress is recorded
// step by step through the tracker so every observer sees a consistent
// record. Collaborators (audio extraction, transcription, compositing,
// publishing) are interfaces; the default wiring shells out to ffmpeg and
// WhisperX. Simulated jobs walk the same steps on a timer without touching
// any collaborator or the transcription cache.
package pipeline
