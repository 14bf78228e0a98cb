package media

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeUploader struct {
	calls int
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, file File, kind Kind) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/" + string(kind) + "/" + file.Name, nil
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
		wantErr     bool
	}{
		{"image/png", KindImage, false},
		{"image/jpeg; charset=binary", KindImage, false},
		{"video/mp4", KindVideo, false},
		{"application/pdf", "", true},
		{"text/plain", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := KindOf(tt.contentType)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("KindOf(%q) err = %v, want ErrUnsupportedType", tt.contentType, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("KindOf(%q) = %q, %v; want %q", tt.contentType, got, err, tt.want)
		}
	}
}

func TestStoreUnsupportedSkipsUpload(t *testing.T) {
	up := &fakeUploader{}
	_, err := Store(context.Background(), up, File{Name: "a.pdf", ContentType: "application/pdf", Body: strings.NewReader("x")})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
	if up.calls != 0 {
		t.Errorf("uploader called %d times, want 0", up.calls)
	}
}

func TestStoreWrapsUploadFailure(t *testing.T) {
	up := &fakeUploader{err: errors.New("connection refused")}
	_, err := Store(context.Background(), up, File{Name: "a.png", ContentType: "image/png", Body: strings.NewReader("x")})
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("err = %v, want ErrUploadFailed", err)
	}

	if _, err := Store(context.Background(), nil, File{Name: "a.png", ContentType: "image/png"}); !errors.Is(err, ErrUploadFailed) {
		t.Errorf("nil uploader err = %v, want ErrUploadFailed", err)
	}
}

func TestStoreSuccess(t *testing.T) {
	res, err := Store(context.Background(), &fakeUploader{}, File{Name: "clip.mp4", ContentType: "video/mp4", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindVideo || res.URL != "https://cdn.example/video/clip.mp4" {
		t.Errorf("result = %+v", res)
	}
}

func TestPublicBaseAndKey(t *testing.T) {
	if got := publicBase(MinIOConfig{Endpoint: "s3.local:9000", Bucket: "b"}); got != "http://s3.local:9000/b" {
		t.Errorf("publicBase = %q", got)
	}
	if got := publicBase(MinIOConfig{Endpoint: "s3.local", Bucket: "b", UseSSL: true}); got != "https://s3.local/b" {
		t.Errorf("publicBase ssl = %q", got)
	}
	if got := publicBase(MinIOConfig{PublicURL: "https://cdn.example/media/"}); got != "https://cdn.example/media" {
		t.Errorf("publicBase public = %q", got)
	}

	key := objectKey(KindImage, "Photo.JPG")
	if !strings.HasPrefix(key, "image/") || !strings.HasSuffix(key, ".jpg") {
		t.Errorf("objectKey = %q", key)
	}
}
