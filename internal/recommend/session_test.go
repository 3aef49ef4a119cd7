package recommend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
)

func TestNewSessionStartsIdle(t *testing.T) {
	session := NewSession()

	assert.True(t, session.Stopped())
	assert.False(t, session.Running())
	assert.True(t, session.Exhausted())
	assert.False(t, session.InProgress())
}

func TestStartSelectionMarksCheckedItems(t *testing.T) {
	session := NewSession()
	session.SetLibrary([]models.LibraryItem{
		{Name: "Frank Herbert - Dune", Checked: true},
		{Name: "Jane Austen - Emma"},
		{Name: "Dan Simmons - Hyperion"},
	}, nil)

	require.NoError(t, session.StartSelection([]string{"Jane Austen - Emma", "Dan Simmons - Hyperion"}))

	library := session.Library()
	assert.False(t, library[0].Checked, "previously checked item must reset")
	assert.True(t, library[1].Checked)
	assert.True(t, library[2].Checked)
	assert.Equal(t, 2, session.SeedCount())
	assert.True(t, session.Running())
	assert.False(t, session.Exhausted())
}

func TestStartSelectionWithNoSeedsStops(t *testing.T) {
	session := NewSession()
	session.SetLibrary([]models.LibraryItem{{Name: "Frank Herbert - Dune"}}, nil)

	err := session.StartSelection(nil)

	require.ErrorIs(t, err, ErrNoSeedsSelected)
	assert.True(t, session.Stopped())
}

func TestSampleSeedsClampsAndDoesNotRepeat(t *testing.T) {
	session := NewSession()
	names := []string{"A", "B", "C"}
	items := make([]models.LibraryItem, len(names))
	for i, n := range names {
		items[i] = models.LibraryItem{Name: n}
	}
	session.SetLibrary(items, nil)
	require.NoError(t, session.StartSelection(names))

	sample := session.SampleSeeds(10)

	require.Len(t, sample, 3)
	seen := make(map[string]bool)
	for _, s := range sample {
		assert.False(t, seen[s], "seed %q sampled twice", s)
		seen[s] = true
	}
}

func TestConnectSnapshotTrimsForFirstClient(t *testing.T) {
	session := NewSession()
	for i := 0; i < 40; i++ {
		session.Append(models.Book{Title: fmt.Sprintf("Book %d", i), Author: "Author"})
	}

	snapshot := session.ConnectSnapshot(true)

	assert.Len(t, snapshot, connectionSampleSize)
	assert.Len(t, session.Books(), connectionSampleSize, "retained set shrinks too")
}

func TestConnectSnapshotLeavesSetForLaterClients(t *testing.T) {
	session := NewSession()
	for i := 0; i < 40; i++ {
		session.Append(models.Book{Title: fmt.Sprintf("Book %d", i), Author: "Author"})
	}

	snapshot := session.ConnectSnapshot(false)

	assert.Len(t, snapshot, 40)
	assert.Len(t, session.Books(), 40)
}

func TestUpdateBookStatus(t *testing.T) {
	session := NewSession()
	session.Append(models.Book{Title: "Hyperion", Author: "Dan Simmons"})

	updated, ok := session.UpdateBookStatus("Dan Simmons", "Hyperion", "Added")

	require.True(t, ok)
	assert.Equal(t, "Added", updated.Status)
	assert.Equal(t, "Added", session.Books()[0].Status)

	_, ok = session.UpdateBookStatus("Nobody", "Nothing", "Added")
	assert.False(t, ok)
}

func TestAddLibraryItemJoinsOwnedSet(t *testing.T) {
	session := NewSession()

	session.AddLibraryItem("Dan Simmons - Hyperion", OwnedKey("Dan Simmons", "Hyperion"))

	require.Len(t, session.Library(), 1)
	assert.True(t, session.Owned(OwnedKey("Dan Simmons", "Hyperion")))
}
