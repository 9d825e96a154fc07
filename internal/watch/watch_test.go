package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func setUserVersion(t *testing.T, db *sql.DB, v int) {
	t.Helper()
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		t.Fatal(err)
	}
}

func TestMaxColumnDetector(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, updated_at INTEGER)`); err != nil {
		t.Fatal(err)
	}
	det := MaxColumnDetector("kv", "updated_at")

	v, err := det(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("empty table: got %d, want 0", v)
	}

	if _, err := db.Exec(`INSERT INTO kv VALUES ('currentMode', 1700)`); err != nil {
		t.Fatal(err)
	}
	v, err = det(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1700 {
		t.Fatalf("got %d, want 1700", v)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("quoteIdent: got %s", got)
	}
}

func TestOnChange_FiresOnVersionChange(t *testing.T) {
	db := testDB(t)

	var fired atomic.Int32
	w := New(db, Options{Interval: 20 * time.Millisecond, Detector: PragmaUserVersion})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		fired.Add(1)
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	setUserVersion(t, db, 1)
	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("after first bump: got %d fires, want 1", got)
	}

	setUserVersion(t, db, 2)
	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Fatalf("after second bump: got %d fires, want 2", got)
	}

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Fatalf("no bump: got %d fires, want 2", got)
	}
}

func TestOnChange_Debounce(t *testing.T) {
	db := testDB(t)

	var fired atomic.Int32
	w := New(db, Options{
		Interval: 20 * time.Millisecond,
		Debounce: 100 * time.Millisecond,
		Detector: PragmaUserVersion,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		fired.Add(1)
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	for i := 1; i <= 5; i++ {
		setUserVersion(t, db, i)
		time.Sleep(15 * time.Millisecond)
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("during debounce: got %d fires, want 0", got)
	}

	time.Sleep(250 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("after debounce: got %d fires, want 1", got)
	}
}

func TestOnChange_ErrorRetriesWithoutAdvancing(t *testing.T) {
	db := testDB(t)

	var calls atomic.Int32
	w := New(db, Options{Interval: 20 * time.Millisecond, Detector: PragmaUserVersion})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("subscriber gone")
		}
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	setUserVersion(t, db, 1)
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got < 2 {
		t.Fatalf("got %d calls, want at least 2 (fail then succeed)", got)
	}
	if v := w.Version(); v != 1 {
		t.Fatalf("version: got %d, want 1", v)
	}
	if s := w.Stats(); s.Errors == 0 || s.Fires == 0 {
		t.Fatalf("stats: %+v", s)
	}
}
