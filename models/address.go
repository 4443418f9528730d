package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AddressKind вид адреса монтажа в строке КИП
type AddressKind int

const (
	AddressSlot AddressKind = iota
	AddressAVZ
	AddressBulk
)

// AddressAVZToken литерал адреса аварийного запаса
const AddressAVZToken = "авз"

var bulkPattern = regexp.MustCompile(`^(\d+)\s*шт\.?$`)

// MountingAddress разобранный адрес монтажа: АВЗ, количество "N шт." или "статив-место"
type MountingAddress struct {
	Kind  AddressKind
	Count int
	Rack  string
	Place string

	// исходная запись количества, сохраняется без изменений
	raw string
}

// ParseMountingAddress разбирает строку адреса.
// Статив отделяется от места первым дефисом, номер места может содержать дефисы.
func ParseMountingAddress(raw string) (MountingAddress, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return MountingAddress{}, fmt.Errorf("адрес монтажа не указан")
	}
	if strings.EqualFold(s, AddressAVZToken) {
		return MountingAddress{Kind: AddressAVZ}, nil
	}
	if m := bulkPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return MountingAddress{}, fmt.Errorf("некорректное количество в адресе %q", raw)
		}
		return MountingAddress{Kind: AddressBulk, Count: n, raw: s}, nil
	}
	rack, place, ok := strings.Cut(s, "-")
	rack = strings.TrimSpace(rack)
	place = strings.TrimSpace(place)
	if !ok || rack == "" || place == "" {
		return MountingAddress{}, fmt.Errorf("адрес %q должен иметь вид \"статив-место\", \"авз\" или \"N шт.\"", raw)
	}
	return MountingAddress{Kind: AddressSlot, Rack: rack, Place: place}, nil
}

// String возвращает запись адреса. Количество возвращается так, как было введено.
func (a MountingAddress) String() string {
	switch a.Kind {
	case AddressAVZ:
		return AddressAVZToken
	case AddressBulk:
		if a.raw != "" {
			return a.raw
		}
		return fmt.Sprintf("%d шт.", a.Count)
	default:
		return a.Rack + "-" + a.Place
	}
}

// IsCatchAll проверяет, указывает ли адрес на общее место символического статива
func (a MountingAddress) IsCatchAll() bool {
	return a.Kind == AddressSlot && IsCatchAllRack(a.Rack) &&
		strings.EqualFold(a.Place, PlaceCatchAll)
}

// ExemptFromDuplicateCheck адреса, на которые допускается несколько строк КИП
func (a MountingAddress) ExemptFromDuplicateCheck() bool {
	return a.Kind != AddressSlot || a.IsCatchAll()
}
