package pocketbase

import (
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
)

// File is a file part of a multipart record body.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Multipart is a record body carrying file uploads alongside plain fields.
// Fields keep insertion order; repeated keys become multi-value fields,
// which is how relation lists are sent.
type Multipart struct {
	fields []field
	files  []File
}

type field struct {
	key   string
	value string
}

// NewMultipart returns an empty form.
func NewMultipart() *Multipart {
	return &Multipart{}
}

// Set appends a text field.
func (m *Multipart) Set(key, value string) *Multipart {
	m.fields = append(m.fields, field{key: key, value: value})
	return m
}

// SetBool appends a boolean field.
func (m *Multipart) SetBool(key string, value bool) *Multipart {
	return m.Set(key, strconv.FormatBool(value))
}

// SetList appends one field per value.
func (m *Multipart) SetList(key string, values []string) *Multipart {
	for _, v := range values {
		m.Set(key, v)
	}
	return m
}

// AddFile attaches a file part.
func (m *Multipart) AddFile(fieldName, fileName string, content io.Reader) *Multipart {
	m.files = append(m.files, File{Field: fieldName, Name: fileName, Content: content})
	return m
}

// Files returns the attached file parts.
func (m *Multipart) Files() []File { return m.files }

// Value returns the first value of key.
func (m *Multipart) Value(key string) (string, bool) {
	for _, f := range m.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return "", false
}

// encode streams the form through a pipe, so file parts are copied to the
// connection as it is written instead of being held in memory. The caller
// must close the returned reader.
func (m *Multipart) encode() (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	contentType := w.FormDataContentType()
	go func() {
		pw.CloseWithError(m.write(w))
	}()
	return pr, contentType
}

func (m *Multipart) write(w *multipart.Writer) error {
	for _, f := range m.fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return fmt.Errorf("writing field %s: %w", f.key, err)
		}
	}
	for _, f := range m.files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return fmt.Errorf("creating part %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return fmt.Errorf("copying %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}
	return nil
}
