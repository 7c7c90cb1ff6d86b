// Package inventory loads the switch inventory CSV into typed, validated
// device records. The expected file shape matches the original tooling:
//
//	ip,username,password
//	192.168.0.2,super_user,MyPassw0rd!
package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// KindJuniper is the only device family this tool manages. The field exists
// so the session layer can grow other families without touching the loader.
const KindJuniper = "juniper"

// Device is one inventory row. Immutable once constructed.
type Device struct {
	Address  string `validate:"required,ip|hostname"`
	Username string `validate:"required"`
	Password string `validate:"required"`
	Kind     string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the inventory file at path.
func Load(path string) ([]Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory file: %w", err)
	}
	defer f.Close()

	devices, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("inventory file %s: %w", path, err)
	}
	return devices, nil
}

// Parse reads inventory rows from r. The first record must be a header
// naming at least the ip, username and password columns, in any order.
func Parse(r io.Reader) ([]Device, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("inventory is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"ip", "username", "password"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var devices []Device
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		dev := Device{
			Address:  strings.TrimSpace(record[cols["ip"]]),
			Username: strings.TrimSpace(record[cols["username"]]),
			Password: record[cols["password"]],
			Kind:     KindJuniper,
		}
		if err := validate.Struct(dev); err != nil {
			return nil, fmt.Errorf("row %d (address %q): %w", row, dev.Address, err)
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("inventory contains no devices")
	}
	return devices, nil
}
