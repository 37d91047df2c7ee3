package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixelwall/pixelwall/internal/grid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("pixelwall"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic(fmt.Sprintf("start postgres container: %v", err))
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(fmt.Sprintf("get connection string: %v", err))
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		panic(fmt.Sprintf("create pool: %v", err))
	}

	if err := RunMigrations(ctx, testPool); err != nil {
		panic(fmt.Sprintf("run migrations: %v", err))
	}
	// Idempotent: a restart re-runs migrations against existing tables.
	if err := RunMigrations(ctx, testPool); err != nil {
		panic(fmt.Sprintf("re-run migrations: %v", err))
	}

	code := m.Run()

	testPool.Close()
	_ = testcontainers.TerminateContainer(ctr)

	os.Exit(code)
}

// freshStore truncates all campaign tables and returns a store.
func freshStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx, `
		TRUNCATE cell_allocations, revealed_cells, processed_events, donations
	`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return NewPostgresStore(testPool, 5*time.Second, 30*time.Second)
}

func TestPostgres_TryRevealCell_SingleWinner(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	reveal := func() bool {
		var won bool
		if err := store.InTx(ctx, func(tx GridTx) error {
			var err error
			won, err = tx.TryRevealCell(ctx, 5, 5)
			return err
		}); err != nil {
			t.Fatalf("tx: %v", err)
		}
		return won
	}

	if !reveal() {
		t.Error("first reveal should win")
	}
	if reveal() {
		t.Error("second reveal should lose")
	}
}

func TestPostgres_TryRevealCell_ConcurrentWinners(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	const workers = 16
	wins := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InTx(ctx, func(tx GridTx) error {
				won, err := tx.TryRevealCell(ctx, 9, 9)
				if err != nil {
					return err
				}
				wins <- won
				return nil
			})
			if err != nil {
				t.Errorf("tx: %v", err)
			}
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestPostgres_TryInsertEvent_Dedupe(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	insert := func(id string) bool {
		var fresh bool
		if err := store.InTx(ctx, func(tx GridTx) error {
			var err error
			fresh, err = tx.TryInsertEvent(ctx, id)
			return err
		}); err != nil {
			t.Fatalf("tx: %v", err)
		}
		return fresh
	}

	if !insert("evt_pg_1") {
		t.Error("first insert should be fresh")
	}
	if insert("evt_pg_1") {
		t.Error("second insert should be a duplicate")
	}
	if !insert("evt_pg_2") {
		t.Error("a different event id should be fresh")
	}
}

func TestPostgres_Rollback_LeavesNoTrace(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx GridTx) error {
		if _, err := tx.TryInsertEvent(ctx, "evt_rb"); err != nil {
			return err
		}
		for x := 0; x < 3; x++ {
			if _, err := tx.TryRevealCell(ctx, x, 0); err != nil {
				return err
			}
			if err := tx.RecordAllocation(ctx, x, 0, "evt_rb"); err != nil {
				return err
			}
		}
		if err := tx.InsertDonation(ctx, grid.Donation{EventID: "evt_rb", AmountMinorUnits: 7500, CellsAllocated: 3}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("tx error = %v, want %v", err, boom)
	}

	n, err := store.RevealedCount(ctx)
	if err != nil {
		t.Fatalf("RevealedCount: %v", err)
	}
	if n != 0 {
		t.Errorf("revealed count after rollback = %d, want 0", n)
	}

	var fresh bool
	if err := store.InTx(ctx, func(tx GridTx) error {
		var err error
		fresh, err = tx.TryInsertEvent(ctx, "evt_rb")
		return err
	}); err != nil {
		t.Fatalf("retry tx: %v", err)
	}
	if !fresh {
		t.Error("event id should be fresh after rollback")
	}
}

func TestPostgres_RecordAllocation_Idempotent(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	if err := store.InTx(ctx, func(tx GridTx) error {
		if _, err := tx.TryRevealCell(ctx, 1, 2); err != nil {
			return err
		}
		if err := tx.RecordAllocation(ctx, 1, 2, "evt_al"); err != nil {
			return err
		}
		return tx.RecordAllocation(ctx, 1, 2, "evt_al")
	}); err != nil {
		t.Fatalf("tx: %v", err)
	}

	d, err := store.CellDetail(ctx, 1, 2)
	if err != nil {
		t.Fatalf("CellDetail: %v", err)
	}
	if d.EventID != "evt_al" {
		t.Errorf("EventID = %q, want evt_al", d.EventID)
	}
}

func seedEvent(t *testing.T, store *PostgresStore, eventID string, amount int64, message string, coords ...grid.Coord) {
	t.Helper()
	ctx := context.Background()
	if err := store.InTx(ctx, func(tx GridTx) error {
		if _, err := tx.TryInsertEvent(ctx, eventID); err != nil {
			return err
		}
		for _, c := range coords {
			if _, err := tx.TryRevealCell(ctx, c.X, c.Y); err != nil {
				return err
			}
			if err := tx.RecordAllocation(ctx, c.X, c.Y, eventID); err != nil {
				return err
			}
		}
		return tx.InsertDonation(ctx, grid.Donation{
			EventID:          eventID,
			AmountMinorUnits: amount,
			Message:          message,
			CellsAllocated:   len(coords),
		})
	}); err != nil {
		t.Fatalf("seed event %s: %v", eventID, err)
	}
}

func TestPostgres_Snapshot_OrderedAndEnriched(t *testing.T) {
	store := freshStore(t)
	seedEvent(t, store, "evt_sn", 5000, "hi",
		grid.Coord{X: 3, Y: 1}, grid.Coord{X: 0, Y: 2}, grid.Coord{X: 3, Y: 0})

	page, err := store.Snapshot(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(page.Cells) != 3 {
		t.Fatalf("snapshot has %d cells, want 3", len(page.Cells))
	}

	want := []grid.Coord{{X: 0, Y: 2}, {X: 3, Y: 0}, {X: 3, Y: 1}}
	for i, c := range page.Cells {
		if c.X != want[i].X || c.Y != want[i].Y {
			t.Errorf("cell %d = (%d,%d), want (%d,%d)", i, c.X, c.Y, want[i].X, want[i].Y)
		}
		if c.EventID != "evt_sn" || c.AmountMinorUnits != 5000 || c.Message != "hi" {
			t.Errorf("cell %d metadata = (%q, %d, %q)", i, c.EventID, c.AmountMinorUnits, c.Message)
		}
	}
}

func TestPostgres_Snapshot_Pagination(t *testing.T) {
	store := freshStore(t)
	var coords []grid.Coord
	for x := 0; x < 4; x++ {
		for y := 0; y < 2; y++ {
			coords = append(coords, grid.Coord{X: x, Y: y})
		}
	}
	seedEvent(t, store, "evt_pp", 20000, "", coords...)

	var got []grid.SnapshotCell
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		page, err := store.Snapshot(context.Background(), cursor, 3)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		got = append(got, page.Cells...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(got) != 8 {
		t.Fatalf("paginated snapshot returned %d cells, want 8", len(got))
	}
	for i := 1; i < len(got); i++ {
		prev := grid.Coord{X: got[i-1].X, Y: got[i-1].Y}
		cur := grid.Coord{X: got[i].X, Y: got[i].Y}
		if !prev.Less(cur) {
			t.Errorf("cells out of order at %d: %v then %v", i, prev, cur)
		}
	}
}

func TestPostgres_CellDetail(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()
	seedEvent(t, store, "evt_cd", 2500, "x", grid.Coord{X: 7, Y: 8})

	d, err := store.CellDetail(ctx, 7, 8)
	if err != nil {
		t.Fatalf("CellDetail: %v", err)
	}
	if d.EventID != "evt_cd" || d.AmountMinorUnits != 2500 || d.Message != "x" {
		t.Errorf("detail = (%q, %d, %q)", d.EventID, d.AmountMinorUnits, d.Message)
	}
	if d.RevealedAt.IsZero() {
		t.Error("expected non-zero RevealedAt")
	}

	if _, err := store.CellDetail(ctx, 7, 9); !errors.Is(err, ErrCellNotRevealed) {
		t.Errorf("error = %v, want ErrCellNotRevealed", err)
	}
}

func TestPostgres_CascadeDeleteAllocation(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()
	seedEvent(t, store, "evt_cc", 2500, "", grid.Coord{X: 6, Y: 6})

	// Administrative removal only; never done in normal operation.
	if _, err := testPool.Exec(ctx, `DELETE FROM revealed_cells WHERE x = 6 AND y = 6`); err != nil {
		t.Fatalf("delete cell: %v", err)
	}

	var count int
	if err := testPool.QueryRow(ctx, `SELECT count(*) FROM cell_allocations WHERE x = 6 AND y = 6`).Scan(&count); err != nil {
		t.Fatalf("count allocations: %v", err)
	}
	if count != 0 {
		t.Errorf("allocation rows after cascade = %d, want 0", count)
	}
}
