package model

type SyncCommand string

const (
	CommandCreate SyncCommand = "CREATE"
	CommandUpdate SyncCommand = "UPDATE"
	CommandDelete SyncCommand = "DELETE"
)

// SyncTask is one operation derived from a diff. SourcePath is the absolute
// path of the entry inside the source tree.
type SyncTask struct {
	Command    SyncCommand
	Entry      Entry
	SourcePath string
}

// Key identifies the task across retry attempts.
func (t SyncTask) Key() string {
	return t.Entry.Key()
}
