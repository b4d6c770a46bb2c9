package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JR-coderli/EFsafari/internal/upstream/clickflare"
)

func item(date, ts, offer string, tf ...string) clickflare.Item {
	it := clickflare.Item{Date: clickflare.Text(date), TrafficSourceID: clickflare.Text(ts), OfferID: clickflare.Text(offer)}
	fields := []*clickflare.Text{&it.TrackingField1, &it.TrackingField2, &it.TrackingField3, &it.TrackingField4, &it.TrackingField5, &it.TrackingField6}
	for i, v := range tf {
		*fields[i] = clickflare.Text(v)
	}
	return it
}

func TestMergePassesCopiesLander(t *testing.T) {
	p1 := []clickflare.Item{
		item("2026-03-01", "ts1", "o1", "a", "b"),
		item("2026-03-01", "ts1", "o1", "a", "c"),
	}
	first := item("2026-03-01", "ts1", "o1", "a", "b")
	first.LandingID, first.LandingName = "l1", "Lander One"
	second := first
	second.LandingID, second.LandingName = "l2", "Lander Two"

	got := MergePasses(p1, []clickflare.Item{first, second})
	assert.Len(t, got, 2)
	assert.Equal(t, clickflare.Text("l1"), got[0].LandingID, "first pass2 match wins")
	assert.Equal(t, clickflare.Text("Lander One"), got[0].LandingName)
	assert.Empty(t, got[1].LandingID)
	assert.Empty(t, got[1].LandingName)
}

func TestMergePassesKeyIsStructural(t *testing.T) {
	// field values that would collide if the key were a joined string
	p1 := []clickflare.Item{item("2026-03-01", "ts", "o", "a|b", "")}
	p2 := item("2026-03-01", "ts", "o", "a", "b")
	p2.LandingID = "l1"

	got := MergePasses(p1, []clickflare.Item{p2})
	assert.Empty(t, got[0].LandingID)
}

func TestMergePassesEmptySecondPass(t *testing.T) {
	p1 := []clickflare.Item{item("2026-03-01", "ts", "o")}
	p1[0].LandingID = "kept"
	got := MergePasses(p1, nil)
	assert.Equal(t, p1, got)
}
