package upload

import (
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeMulti, false},
		{"multi", ModeMulti, false},
		{"SINGLE", ModeSingle, false},
		{" single ", ModeSingle, false},
		{"batch", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPolicy_Allowed(t *testing.T) {
	p := Policy{Mode: ModeMulti, AllowedTypes: DefaultAllowedTypes}

	tests := []struct {
		name string
		file File
		want bool
	}{
		{"png", File{Name: "a.png", MIMEType: "image/png"}, true},
		{"uppercase ext", File{Name: "A.PNG", MIMEType: "image/png"}, true},
		{"jpg with jpeg mime", File{Name: "a.jpg", MIMEType: "image/jpeg"}, true},
		{"jpeg", File{Name: "a.jpeg", MIMEType: "image/jpeg"}, true},
		{"mime with params", File{Name: "a.png", MIMEType: "image/png; charset=binary"}, true},
		{"uppercase mime", File{Name: "a.png", MIMEType: "IMAGE/PNG"}, true},
		{"txt", File{Name: "a.txt", MIMEType: "text/plain"}, false},
		{"gif", File{Name: "a.gif", MIMEType: "image/gif"}, false},
		{"png name with txt mime", File{Name: "a.png", MIMEType: "text/plain"}, false},
		{"double extension", File{Name: "a.png.exe", MIMEType: "image/png"}, false},
		{"empty mime", File{Name: "a.png", MIMEType: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.allowed(tt.file); got != tt.want {
				t.Errorf("allowed(%+v) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestPolicy_CustomTypes(t *testing.T) {
	p := Policy{AllowedTypes: []string{".png"}}
	if !p.allowed(File{Name: "x.png", MIMEType: "image/png"}) {
		t.Error("expected png to be allowed with dotted type list")
	}
	if p.allowed(File{Name: "x.jpg", MIMEType: "image/jpeg"}) {
		t.Error("expected jpg to be rejected when not configured")
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Reason: ReasonUnsupportedFileType, File: "a.txt"}
	if err.Error() != "invalid upload (unsupported_file_type): a.txt" {
		t.Errorf("unexpected message %q", err.Error())
	}
	err = &ValidationError{Reason: ReasonTooManyFiles}
	if err.Error() != "invalid upload (too_many_files)" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
