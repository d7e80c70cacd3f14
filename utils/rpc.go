package utils

import (
	"fmt"
	"strings"
)

// BuildRPCURL constructs the full RPC URL by appending the API key when the
// base URL does not already carry one
func BuildRPCURL(baseURL, apiKey string) string {
	if apiKey == "" {
		return baseURL
	}

	if strings.Contains(baseURL, "YOUR_API_KEY") {
		return strings.Replace(baseURL, "YOUR_API_KEY", apiKey, 1)
	}

	// Already has a key in the path (https://host/v2/<key>)
	if strings.Count(strings.TrimSuffix(baseURL, "/"), "/") > 3 {
		return baseURL
	}

	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), apiKey)
}

// RedactRPCURL hides the API key segment for logging
func RedactRPCURL(url string) string {
	trimmed := strings.TrimSuffix(url, "/")
	if strings.Count(trimmed, "/") <= 3 {
		return url
	}
	idx := strings.LastIndex(trimmed, "/")
	return trimmed[:idx] + "/***"
}
