package core

import "testing"

func TestNewScreenshotAttachment(t *testing.T) {
	data := []byte{0x89, 0x50, 0x4E, 0x47} // PNG header
	attachment := NewScreenshotAttachment("after-calculate.png", data)

	if attachment.Name != AttachmentScreenshot {
		t.Errorf("Name = %s, want %s", attachment.Name, AttachmentScreenshot)
	}
	if attachment.ContentType != ContentTypePNG {
		t.Errorf("ContentType = %s, want %s", attachment.ContentType, ContentTypePNG)
	}
	if attachment.Path != "after-calculate.png" {
		t.Errorf("Path = %s, want 'after-calculate.png'", attachment.Path)
	}
	if len(attachment.Body) != 4 {
		t.Errorf("Body length = %d, want 4", len(attachment.Body))
	}
}

func TestLocator(t *testing.T) {
	loc := ID("io.billmeyer.loancalc:id/etLoanAmount")
	if loc.Strategy != ByID {
		t.Errorf("Strategy = %q, want %q", loc.Strategy, ByID)
	}
	if got := loc.String(); got != "id=io.billmeyer.loancalc:id/etLoanAmount" {
		t.Errorf("String() = %q", got)
	}
	if loc.IsZero() {
		t.Error("IsZero() should be false for a populated locator")
	}
	if !(Locator{}).IsZero() {
		t.Error("IsZero() should be true for the zero locator")
	}
}
