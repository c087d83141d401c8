package configfiles

import (
	"strings"
	"testing"
)

// TestGetConfigExample tests the embedded configuration template
func TestGetConfigExample(t *testing.T) {
	content, err := GetConfigExample()
	if err != nil {
		t.Fatalf("GetConfigExample failed: %v", err)
	}
	if len(content) == 0 {
		t.Error("GetConfigExample returned empty content")
	}
	for _, section := range []string{"server:", "generator:", "editor:", "context:", "retention:"} {
		if !strings.Contains(string(content), section) {
			t.Errorf("Example config missing section %q", section)
		}
	}
}
