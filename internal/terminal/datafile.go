package terminal

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
)

// ReadDataFile reads a block's data-passing file: a JSON object of
// string variable names to string-encoded values. The generated
// wrappers are the only writers; a block that exports nothing writes
// nothing, so a missing file is not an error and yields an empty map.
func ReadDataFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	values := make(map[string]string)
	if err := sonic.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode data file: %w", err)
	}
	return values, nil
}
