package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/blockquote/pkg/records"
)

func TestSetGet(t *testing.T) {
	c := New(time.Minute, time.Minute)

	c.Set(RecordKey("A"), records.Record{ID: "A"})
	v, ok := c.Get(RecordKey("A"))
	assert.True(t, ok)
	assert.Equal(t, "A", v.(records.Record).ID)

	_, ok = c.Get(RecordKey("B"))
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New(10*time.Millisecond, time.Minute)
	c.Set("short", 1)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("short")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInvalidateRecord(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.Set(RecordKey("A"), 1)
	c.Set(RecordKey("B"), 2)
	c.Set(ListKey(records.Page{Limit: 10}), 3)
	c.Set(ListKey(records.Page{Limit: 10, Offset: 10}), 4)

	c.InvalidateRecord("A")

	_, ok := c.Get(RecordKey("A"))
	assert.False(t, ok)
	_, ok = c.Get(RecordKey("B"))
	assert.True(t, ok, "other records survive")
	assert.Equal(t, 1, c.ItemCount(), "list pages are dropped")
}

func TestClear(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, Stats{ItemCount: 2}, c.GetStats())

	c.Clear()
	assert.Zero(t, c.ItemCount())
}

func TestListKey(t *testing.T) {
	assert.Equal(t, "list:25:50", ListKey(records.Page{Limit: 25, Offset: 50}))
	assert.NotEqual(t, ListKey(records.Page{Limit: 25}), ListKey(records.Page{Limit: 50}))
}
