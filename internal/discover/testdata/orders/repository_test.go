//go:build integration && !windows

package orders

import "testing"

func TestRepositorySave(t *testing.T) {}

func FuzzDecode(f *testing.F) {}
