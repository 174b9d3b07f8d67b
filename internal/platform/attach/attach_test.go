package attach

import (
	"bytes"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDataURL_RoundTrip(t *testing.T) {
	payload := []byte("invoice pdf bytes")
	url := EncodeDataURL("application/pdf", payload)
	if !strings.HasPrefix(url, "data:application/pdf;base64,") {
		t.Fatalf("unexpected url prefix: %s", url)
	}

	contentType, data, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if contentType != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", contentType)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("payload mismatch: got %q", data)
	}
}

func TestEncodeDataURL_DefaultContentType(t *testing.T) {
	url := EncodeDataURL("", []byte("x"))
	if !strings.HasPrefix(url, "data:application/octet-stream;base64,") {
		t.Errorf("expected octet-stream default, got %s", url)
	}
}

func TestDecodeDataURL_Malformed(t *testing.T) {
	cases := []string{
		"http://example.com/a.png",
		"data:text/plain",
		"data:text/plain,plain-not-base64",
		"data:text/plain;base64,!!!",
	}
	for _, in := range cases {
		if _, _, err := DecodeDataURL(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func buildMultipart(t *testing.T, files map[string][]byte) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	reader := multipart.NewReader(&buf, w.Boundary())
	form, err := reader.ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files"]
}

func TestFromMultipart_IngestsFiles(t *testing.T) {
	headers := buildMultipart(t, map[string][]byte{
		"xray.png":    []byte("png-bytes"),
		"invoice.pdf": []byte("pdf-bytes"),
	})

	files := FromMultipart(headers, zerolog.Nop())
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	seen := map[string]bool{}
	for _, f := range files {
		if f.ID == "" {
			t.Error("expected generated file id")
		}
		if !strings.HasPrefix(f.URL, "data:") {
			t.Errorf("expected data url, got %s", f.URL)
		}
		if f.UploadDate == "" {
			t.Error("expected upload date to be stamped")
		}
		seen[f.Name] = true
	}
	if !seen["xray.png"] || !seen["invoice.pdf"] {
		t.Errorf("missing expected names: %v", seen)
	}
}

func TestFromMultipart_SkipsOversize(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxFileSize+1)
	headers := buildMultipart(t, map[string][]byte{
		"huge.bin":  big,
		"small.txt": []byte("ok"),
	})

	files := FromMultipart(headers, zerolog.Nop())
	if len(files) != 1 {
		t.Fatalf("expected oversize file skipped, got %d files", len(files))
	}
	if files[0].Name != "small.txt" {
		t.Errorf("expected small.txt to survive, got %s", files[0].Name)
	}
}
