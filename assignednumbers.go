package gatt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

//go:embed assignednumbers.json
var assignedNumbersJSON []byte

type assignedNumbersTable struct {
	Services        map[string]string `json:"services"`
	Characteristics map[string]string `json:"characteristics"`
	Descriptors     map[string]string `json:"descriptors"`
}

var (
	assignedNumbersOnce  sync.Once
	assignedNumbers      assignedNumbersTable
	assignedNumbersError error
)

func loadAssignedNumbers() {
	assignedNumbersOnce.Do(func() {
		if err := json.Unmarshal(assignedNumbersJSON, &assignedNumbers); err != nil {
			assignedNumbersError = errors.Wrap(err, "gatt: parsing assigned numbers table")
		}
	})
}

// AssignedName looks up the Bluetooth SIG name for a well-known
// 16-bit UUID across the services, characteristics and descriptors
// categories. It has no bearing on protocol behaviour, and nothing
// else in this package calls it. The table is parsed on the first call.
func AssignedName(u UUID) (string, bool) {
	loadAssignedNumbers()
	if assignedNumbersError != nil {
		componentLog("gatt").WithError(assignedNumbersError).Warn("assigned numbers table unavailable")
		return "", false
	}
	short, ok := u.ShortForm()
	if !ok {
		return "", false
	}
	key := fmt.Sprintf("%02X%02X", short[0], short[1])
	if name, ok := assignedNumbers.Services[key]; ok {
		return name, true
	}
	if name, ok := assignedNumbers.Characteristics[key]; ok {
		return name, true
	}
	if name, ok := assignedNumbers.Descriptors[key]; ok {
		return name, true
	}
	return "", false
}
