package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi/sheetstest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestJobRunIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, strategy := range []string{InsertAppend, InsertAtTop} {
		strategy := strategy
		t.Run(strategy, func(t *testing.T) {
			t.Parallel()

			memory := sheetstest.NewMemory()
			memory.AddSheet("Issues", nil)
			job := NewJob(memory, idLayout(), WriterConfig{InsertStrategy: strategy})
			ctx := context.Background()

			fetched := []Row{
				{"100", "1", Hyperlink("First", "https://gitlab.example.com/1")},
				{"101", "2", Hyperlink(`Say "hi"`, "https://gitlab.example.com/2")},
				{"102", "3", FallbackLabel},
			}

			first, err := job.Run(ctx, fetched)
			if err != nil {
				t.Fatalf("first Run() unexpected error: %v", err)
			}
			if !first.HeaderWritten || first.Inserted != 3 || first.Updated != 0 {
				t.Fatalf("first Run() = %+v, want header + 3 inserts", first)
			}
			afterFirst := memory.Rows("Issues")

			for run := 2; run <= 3; run++ {
				result, err := job.Run(ctx, fetched)
				if err != nil {
					t.Fatalf("Run() #%d unexpected error: %v", run, err)
				}
				if result.Inserted != 0 || result.Updated != 3 || result.HeaderWritten {
					t.Fatalf("Run() #%d = %+v, want update-only plan", run, result)
				}
				if got := memory.Rows("Issues"); !reflect.DeepEqual(got, afterFirst) {
					t.Fatalf("Run() #%d rows = %v, want %v", run, got, afterFirst)
				}
			}
		})
	}
}

func TestJobRunMixesUpdatesAndInserts(t *testing.T) {
	t.Parallel()

	memory := seededIssues()
	job := NewJob(memory, idLayout(), WriterConfig{})

	result, err := job.Run(context.Background(), []Row{
		{"100", "1", "a-updated"},
		{"200", "9", "new"},
	})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if result.Updated != 1 || result.Inserted != 1 || result.Existing != 2 {
		t.Fatalf("Run() = %+v", result)
	}

	want := [][]any{
		{"ID", "IID", "Title"},
		{"100", "1", "a-updated"},
		{"101", "2", "b"},
		{"200", "9", "new"},
	}
	if got := memory.Rows("Issues"); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestJobRunInsertAtTopAppliesUpdatesFirst(t *testing.T) {
	t.Parallel()

	memory := seededIssues()
	job := NewJob(memory, idLayout(), WriterConfig{InsertStrategy: InsertAtTop})

	_, err := job.Run(context.Background(), []Row{
		{"101", "2", "b-updated"},
		{"200", "9", "new"},
	})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	want := [][]any{
		{"ID", "IID", "Title"},
		{"200", "9", "new"},
		{"100", "1", "a"},
		{"101", "2", "b-updated"},
	}
	if got := memory.Rows("Issues"); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestJobRunWarnsOnDuplicateKeys(t *testing.T) {
	t.Parallel()

	memory := sheetstest.NewMemory()
	memory.AddSheet("Issues", [][]any{
		{"ID", "IID", "Title"},
		{"100", "1", "a"},
		{"100", "1", "dup"},
	})
	core, logs := observer.New(zap.WarnLevel)
	job := NewJob(memory, idLayout(), WriterConfig{Logger: zap.New(core)})

	result, err := job.Run(context.Background(), []Row{{"100", "1", "fresh"}})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if len(result.Duplicates) != 1 {
		t.Fatalf("Duplicates = %v, want one", result.Duplicates)
	}
	if logs.FilterMessage("duplicate keys in sheet, last row wins").Len() != 1 {
		t.Fatalf("expected a duplicate key warning")
	}

	rows := memory.Rows("Issues")
	if rows[1][2] != "a" || rows[2][2] != "fresh" {
		t.Fatalf("rows = %v, want the last duplicate updated", rows)
	}
}

func TestJobRunRejectsWrongWidthBeforeReading(t *testing.T) {
	t.Parallel()

	memory := seededIssues()
	job := NewJob(memory, idLayout(), WriterConfig{})

	if _, err := job.Run(context.Background(), []Row{{"100", "1"}}); err == nil {
		t.Fatalf("Run() expected width error")
	}
	if calls := memory.Calls(); len(calls) != 0 {
		t.Fatalf("calls = %+v, want none", calls)
	}
}

func TestJobRunSurfacesReadErrors(t *testing.T) {
	t.Parallel()

	memory := seededIssues()
	memory.FailNext("BatchGetValues", fmt.Errorf("permission denied"))
	job := NewJob(memory, idLayout(), WriterConfig{})

	if _, err := job.Run(context.Background(), []Row{{"100", "1", "x"}}); err == nil {
		t.Fatalf("Run() expected read error")
	}
}

func TestJobRunKeepsNumericLookingTextKeys(t *testing.T) {
	t.Parallel()

	layout := Layout{
		Sheet:        "Issues",
		Headers:      []string{"ID", "Project", "Title"},
		FirstDataRow: 2,
		KeyColumns:   []int{0, 1},
	}
	memory := sheetstest.NewMemory()
	memory.ParseNumbers()
	memory.AddSheet("Issues", nil)
	job := NewJob(memory, layout, WriterConfig{})
	ctx := context.Background()

	fetched := []Row{{int64(100), "007", Hyperlink("First", "https://gitlab.example.com/1")}}
	if _, err := job.Run(ctx, fetched); err != nil {
		t.Fatalf("first Run() unexpected error: %v", err)
	}
	result, err := job.Run(ctx, fetched)
	if err != nil {
		t.Fatalf("second Run() unexpected error: %v", err)
	}
	if result.Inserted != 0 || result.Updated != 1 {
		t.Fatalf("second Run() = %+v, want one update and no inserts", result)
	}

	rows := memory.Rows("Issues")
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want header and one data row", rows)
	}
	if rows[1][1] != "007" {
		t.Fatalf("project cell = %#v, want text 007", rows[1][1])
	}
}
