package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFind(t *testing.T) {
	data := []string{"a", "b", "c"}
	dataMap := map[int32]string{1: "a", 2: "b", 3: "c"}

	all, failed := Find(dataMap, data, nil)
	assert.Equal(t, data, all)
	assert.Empty(t, failed)

	found, failed := Find(dataMap, data, []int32{3, 9, 1})
	assert.Equal(t, []string{"c", "a"}, found)
	assert.Equal(t, []int32{9}, failed)
}
