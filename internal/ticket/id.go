package ticket

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID is an entity identity that is either unassigned (not yet persisted) or assigned.
type ID struct {
	value    int64
	assigned bool
}

// Unassigned is the identity of an entity that has not been persisted.
var Unassigned = ID{}

// Assigned wraps a persisted identity.
func Assigned(v int64) ID {
	return ID{value: v, assigned: true}
}

// Value returns the identity and whether it is assigned.
func (id ID) Value() (int64, bool) {
	return id.value, id.assigned
}

// IsAssigned reports whether the entity has been persisted.
func (id ID) IsAssigned() bool {
	return id.assigned
}

// Int64 returns the identity, or 0 when unassigned. Only meant for ordering and display.
func (id ID) Int64() int64 {
	if !id.assigned {
		return 0
	}
	return id.value
}

func (id ID) String() string {
	if !id.assigned {
		return "unassigned"
	}
	return strconv.FormatInt(id.value, 10)
}

// MarshalJSON encodes unassigned identities as null.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.assigned {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(id.value, 10)), nil
}

// UnmarshalJSON accepts null or a number.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*id = Unassigned
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = Assigned(v)
	return nil
}
