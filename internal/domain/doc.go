// Package domain contains the core entities of the task service: tasks with
// their subtasks and reminder state, the users that own them, and the
// reminder delivery jobs that flow through the queue. Entities validate
// themselves; persistence and transport concerns live elsewhere.
package domain
