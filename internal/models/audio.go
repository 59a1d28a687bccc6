package models

// AudioFile is an audio attachment loaded from the graph, ready for upload.
type AudioFile struct {
	Name        string
	ContentType string
	Data        []byte
	// Converted is set when the bytes were re-encoded by the conversion sidecar.
	Converted bool
}
