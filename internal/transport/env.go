package transport

import (
	"os"
	"sort"
	"strings"
)

const (
	entrypointEnv = "CLAUDE_CODE_ENTRYPOINT"
	sdkEnv        = "CLAUDE_CODE_SDK"
	apiKeyEnv     = "ANTHROPIC_API_KEY"

	entrypoint = "sdk-go"
)

// BuildEnv returns the child environment: base (the parent environment when
// nil) with the SDK markers set, the API key forwarded and extra applied in
// key order. Later entries win.
func BuildEnv(base []string, extra map[string]string, version string) []string {
	if base == nil {
		base = os.Environ()
	}
	if version == "" {
		version = "dev"
	}

	env := make([]string, 0, len(base)+len(extra)+3)
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if key == entrypointEnv || key == sdkEnv {
			continue
		}
		env = append(env, kv)
	}
	env = append(env,
		entrypointEnv+"="+entrypoint,
		sdkEnv+"=go/"+version,
	)
	if key, ok := os.LookupEnv(apiKeyEnv); ok && !hasKey(env, apiKeyEnv) {
		env = append(env, apiKeyEnv+"="+key)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func hasKey(env []string, key string) bool {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}
	return false
}
