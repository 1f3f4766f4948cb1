package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each section to the keys valid inside it.
var knownKeys = map[string][]string{
	"drive":     {"shared_drive_id", "root_folder_id", "credentials_file", "api_base_url", "upload_base_url"},
	"transfers": {"chunk_size", "max_probes", "chunk_timeout", "bandwidth_limit"},
	"limits":    {"max_file_size", "max_batch_size", "direct_threshold"},
	"server":    {"listen", "url", "admin_password", "allowed_upload_prefix", "max_request_body"},
	"notify":    {"endpoint", "token", "group_id", "time_zone"},
	"clients":   {"backend", "db_path", "redis_addr", "redis_key"},
	"logging":   {"log_level", "log_format"},
	"network":   {"connect_timeout", "data_timeout", "user_agent"},
}

// knownSections is the sorted list of section names for Levenshtein matching.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest known
// section or key.
func unknownKeyError(key toml.Key) error {
	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		if s := closestMatch(section, knownSections); s != "" {
			return fmt.Errorf("unknown config section %q — did you mean %q?", section, s)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	if len(key) < 2 { //nolint:mnd // section.key
		return fmt.Errorf("config key %q must be a table", section)
	}

	field := key[1]
	if s := closestMatch(field, keys); s != "" {
		return fmt.Errorf("unknown config key %q in [%s] — did you mean %q?", field, section, s)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
