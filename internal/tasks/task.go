// Package tasks owns the task list screen: the Task model, the document
// store contract it is synchronized against, and the controller that
// reconciles user actions with the live collection.
package tasks

// Task is an immutable snapshot of one document in a user's collection.
// ID is assigned by the store and is empty only before creation.
type Task struct {
	ID        string
	Title     string
	Completed bool
}
