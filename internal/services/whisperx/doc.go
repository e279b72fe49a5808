// Package whisperx transcribes audio by running WhisperX through uvx and
// reading back the JSON segments it writes.
//
// Model, device and VAD settings come from Config. Each call runs in its own
// scratch directory which is removed afterwards.
package whisperx
