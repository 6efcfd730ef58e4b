package notes

// Test helper functions shared across test files

func stringPtr(s string) *string {
	return &s
}
