package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseMountingAddress тестирует разбор адресов монтажа
func TestParseMountingAddress(t *testing.T) {
	t.Run("АВЗ без учета регистра", func(t *testing.T) {
		for _, raw := range []string{"авз", "АВЗ", " Авз "} {
			addr, err := ParseMountingAddress(raw)
			require.NoError(t, err)
			assert.Equal(t, AddressAVZ, addr.Kind)
			assert.Equal(t, "авз", addr.String())
			assert.True(t, addr.ExemptFromDuplicateCheck())
		}
	})

	t.Run("Количество", func(t *testing.T) {
		for _, raw := range []string{"5 шт", "5 шт.", "5шт"} {
			addr, err := ParseMountingAddress(raw)
			require.NoError(t, err)
			assert.Equal(t, AddressBulk, addr.Kind)
			assert.Equal(t, 5, addr.Count)
		}
		_, err := ParseMountingAddress("0 шт.")
		assert.Error(t, err)
	})

	t.Run("Запись количества сохраняется как введена", func(t *testing.T) {
		for raw, want := range map[string]string{"5 шт": "5 шт", "5 шт.": "5 шт.", " 5шт ": "5шт"} {
			addr, err := ParseMountingAddress(raw)
			require.NoError(t, err)
			assert.Equal(t, want, addr.String(), raw)
		}
		assert.Equal(t, "3 шт.", MountingAddress{Kind: AddressBulk, Count: 3}.String())
	})

	t.Run("Статив и место", func(t *testing.T) {
		addr, err := ParseMountingAddress("12-34")
		require.NoError(t, err)
		assert.Equal(t, AddressSlot, addr.Kind)
		assert.Equal(t, "12", addr.Rack)
		assert.Equal(t, "34", addr.Place)
		assert.False(t, addr.IsCatchAll())
		assert.False(t, addr.ExemptFromDuplicateCheck())

		addr, err = ParseMountingAddress("5-1-2")
		require.NoError(t, err)
		assert.Equal(t, "5", addr.Rack)
		assert.Equal(t, "1-2", addr.Place)
	})

	t.Run("Общее место", func(t *testing.T) {
		addr, err := ParseMountingAddress("релейная-остальное")
		require.NoError(t, err)
		assert.True(t, addr.IsCatchAll())
		assert.True(t, addr.ExemptFromDuplicateCheck())
	})

	t.Run("Некорректные адреса", func(t *testing.T) {
		for _, raw := range []string{"", "1234", "-34", "12-"} {
			_, err := ParseMountingAddress(raw)
			assert.Error(t, err, raw)
		}
	})
}
