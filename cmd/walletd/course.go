package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dcbstore/pkg/dcb"
)

// Course domain: the capacity-never-exceeded scenario of spec.md §8
// scenario 3, adapted from the teacher's enrollment example
// (internal/examples/enrollment/main.go), renamed to match spec.md's own
// vocabulary ("CourseDefined", "StudentSubscribed", "course_id",
// "student_id").
const (
	CommandDefineCourse     = "DefineCourse"
	CommandSubscribeStudent = "SubscribeStudent"
)

type CourseDefined struct {
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	Capacity  int       `json:"capacity"`
	DefinedAt time.Time `json:"defined_at"`
}

type StudentSubscribed struct {
	CourseID      string    `json:"course_id"`
	StudentID     string    `json:"student_id"`
	SubscribedAt  time.Time `json:"subscribed_at"`
}

type DefineCourseCommand struct {
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	Capacity int    `json:"capacity"`
}

type SubscribeStudentCommand struct {
	CourseID  string `json:"course_id"`
	StudentID string `json:"student_id"`
}

type courseState struct {
	CourseID   string
	Defined    bool
	Capacity   int
	Subscribed int
}

type studentLoadState struct {
	StudentID      string
	CourseCount    int
}

func courseProjector(courseID string) dcb.StateProjector {
	return dcb.StateProjector{
		ID: "course:" + courseID,
		Query: dcb.NewQuery(
			dcb.NewTags("course_id", courseID),
			"CourseDefined", "StudentSubscribed",
		),
		InitialState: &courseState{CourseID: courseID},
		TransitionFn: func(state any, event dcb.Event) any {
			s := state.(*courseState)
			switch event.Type {
			case "CourseDefined":
				var data CourseDefined
				if err := json.Unmarshal(event.Data, &data); err == nil {
					s.Defined = true
					s.Capacity = data.Capacity
				}
			case "StudentSubscribed":
				s.Subscribed++
			}
			return s
		},
	}
}

// studentLoadProjector tracks how many courses student is already
// subscribed to, so SubscribeStudent's consistency boundary spans both
// "this course is full" and "this student joined another course
// concurrently" per spec.md §8 scenario 3's Q_sub.
func studentLoadProjector(studentID string, maxCourses int) dcb.StateProjector {
	return dcb.StateProjector{
		ID:           "student:" + studentID,
		Query:        dcb.NewQuery(dcb.NewTags("student_id", studentID), "StudentSubscribed"),
		InitialState: &studentLoadState{StudentID: studentID},
		TransitionFn: func(state any, event dcb.Event) any {
			s := state.(*studentLoadState)
			if event.Type == "StudentSubscribed" {
				s.CourseCount++
			}
			return s
		},
	}
}

func HandleDefineCourse(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
	var cmd DefineCourseCommand
	if err := json.Unmarshal(command.GetData(), &cmd); err != nil {
		return nil, nil, fmt.Errorf("course: unmarshal DefineCourse: %w", err)
	}

	event := CourseDefined{
		CourseID:  cmd.CourseID,
		Title:     cmd.Title,
		Capacity:  cmd.Capacity,
		DefinedAt: time.Now(),
	}

	idempotencyQuery := dcb.NewQuery(dcb.NewTags("course_id", cmd.CourseID), "CourseDefined")
	condition := dcb.NewAppendConditionWithIdempotency(dcb.NewQueryEmpty(), idempotencyQuery)

	return []dcb.InputEvent{
		dcb.NewInputEvent("CourseDefined", dcb.NewTags("course_id", cmd.CourseID), dcb.ToJSON(event)),
	}, condition, nil
}

// maxCoursesPerStudent bounds how many courses one student may be
// subscribed to at once - an illustrative second invariant layered onto
// spec.md §8 scenario 3's pure capacity check.
const maxCoursesPerStudent = 5

// HandleSubscribeStudent implements spec.md §8 scenario 3: the
// consistency query spans the course's capacity AND the student's
// existing subscriptions, so a concurrent event on either side is
// caught before the subscription is appended.
func HandleSubscribeStudent(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
	var cmd SubscribeStudentCommand
	if err := json.Unmarshal(command.GetData(), &cmd); err != nil {
		return nil, nil, fmt.Errorf("course: unmarshal SubscribeStudent: %w", err)
	}

	projectors := []dcb.StateProjector{
		courseProjector(cmd.CourseID),
		studentLoadProjector(cmd.StudentID, maxCoursesPerStudent),
	}
	states, condition, err := store.Project(ctx, projectors, dcb.ZeroCursor)
	if err != nil {
		return nil, nil, fmt.Errorf("course: project state: %w", err)
	}

	course := states["course:"+cmd.CourseID].(*courseState)
	student := states["student:"+cmd.StudentID].(*studentLoadState)

	if !course.Defined {
		return nil, nil, fmt.Errorf("course: %s is not defined", cmd.CourseID)
	}
	if course.Subscribed >= course.Capacity {
		return nil, nil, fmt.Errorf("course: %s is full (capacity %d)", cmd.CourseID, course.Capacity)
	}
	if student.CourseCount >= maxCoursesPerStudent {
		return nil, nil, fmt.Errorf("course: student %s already subscribed to %d courses (max %d)", cmd.StudentID, student.CourseCount, maxCoursesPerStudent)
	}

	event := StudentSubscribed{
		CourseID:     cmd.CourseID,
		StudentID:    cmd.StudentID,
		SubscribedAt: time.Now(),
	}

	tags := []dcb.Tag{
		dcb.NewTag("course_id", cmd.CourseID),
		dcb.NewTag("student_id", cmd.StudentID),
	}

	return []dcb.InputEvent{
		dcb.NewInputEvent("StudentSubscribed", tags, dcb.ToJSON(event)),
	}, condition, nil
}

func CourseHandler(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
	switch command.GetType() {
	case CommandDefineCourse:
		return HandleDefineCourse(ctx, store, command)
	case CommandSubscribeStudent:
		return HandleSubscribeStudent(ctx, store, command)
	default:
		return nil, nil, fmt.Errorf("course: unknown command type %q", command.GetType())
	}
}
