package aiservice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultAudioName = "audio.mp3"
	defaultAudioMIME = "audio/mpeg"
	maxAudioBytes    = 25 << 20
)

// audioTypes covers the formats the picker offers; the platform MIME table
// often lacks audio entries.
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

func typeByExtension(ext string) string {
	ext = strings.ToLower(ext)
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

func extensionByType(mimeType string) string {
	if mimeType == defaultAudioMIME {
		return ".mp3"
	}
	for ext, t := range audioTypes {
		if t == mimeType {
			return ext
		}
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// AudioFile is an uploadable audio blob built from whatever handle the
// front-end obtained (a path, a reader, raw bytes).
type AudioFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// NewAudioFile reads r into memory. Name and MIME type may be empty; they
// are defaulted at upload time.
func NewAudioFile(name, mimeType string, r io.Reader) (AudioFile, error) {
	if r == nil {
		return AudioFile{}, errors.New("aiservice: audio reader must not be nil")
	}
	data, err := io.ReadAll(io.LimitReader(r, maxAudioBytes+1))
	if err != nil {
		return AudioFile{}, fmt.Errorf("aiservice: read audio: %w", err)
	}
	if len(data) > maxAudioBytes {
		return AudioFile{}, fmt.Errorf("aiservice: audio exceeds %d bytes", maxAudioBytes)
	}
	return AudioFile{Name: name, MIMEType: mimeType, Data: data}, nil
}

// OpenAudioFile loads an audio file from disk, deriving its MIME type from
// the extension.
func OpenAudioFile(path string) (AudioFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return AudioFile{}, fmt.Errorf("aiservice: open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(path)
	return NewAudioFile(name, typeByExtension(filepath.Ext(name)), f)
}

// Empty reports whether there is nothing to upload.
func (f AudioFile) Empty() bool {
	return len(f.Data) == 0
}

// Normalized fills in the canonical name and MIME type.
func (f AudioFile) Normalized() AudioFile {
	out := f
	out.MIMEType = strings.TrimSpace(out.MIMEType)
	if out.MIMEType == "" {
		out.MIMEType = defaultAudioMIME
	}
	out.Name = strings.TrimSpace(filepath.Base(out.Name))
	if out.Name == "" || out.Name == "." || out.Name == string(filepath.Separator) {
		out.Name = defaultAudioName
	}
	if filepath.Ext(out.Name) == "" {
		out.Name += extensionByType(out.MIMEType)
	}
	return out
}

type multipartBody struct {
	body        []byte
	contentType string
}

// buildUpload writes the file part followed by plain form fields.
func buildUpload(file AudioFile, fields map[string]string) (*multipartBody, error) {
	file = file.Normalized()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	h.Set("Content-Type", file.MIMEType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("aiservice: create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("aiservice: write file part: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("aiservice: write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("aiservice: close multipart: %w", err)
	}
	return &multipartBody{body: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}
