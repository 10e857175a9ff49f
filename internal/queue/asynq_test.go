package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestTaskID(t *testing.T) {
	if got := taskID(Task{Kind: TaskTypeGenerate, JobID: "job-1"}); got != "job-1" {
		t.Errorf("generate task id = %q, want job-1", got)
	}
	if got := taskID(Task{Kind: TaskTypeRegenerate, JobID: "job-1", SceneIndex: 2}); got != "job-1:scene:2" {
		t.Errorf("regenerate task id = %q, want job-1:scene:2", got)
	}
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) (interface{}, bool) {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value(), true
		}
	}
	return nil, false
}

func TestEnqueueOptions(t *testing.T) {
	d := NewAsynqDispatcher(nil, nil, 0, time.Hour)

	gen := d.enqueueOptions(Task{Kind: TaskTypeGenerate, JobID: "job-1"})
	if v, ok := optionValue(gen, asynq.TaskIDOpt); !ok || v != "job-1" {
		t.Errorf("generate task id option = %v", v)
	}
	if v, ok := optionValue(gen, asynq.RetentionOpt); !ok || v != time.Hour {
		t.Errorf("generate tasks keep a retention window, got %v", v)
	}

	// A retained terminal task keeps its id reserved, so regenerate tasks
	// must not carry retention or the scene could never be regenerated twice.
	regen := d.enqueueOptions(Task{Kind: TaskTypeRegenerate, JobID: "job-1", SceneIndex: 2})
	if v, ok := optionValue(regen, asynq.TaskIDOpt); !ok || v != "job-1:scene:2" {
		t.Errorf("regenerate task id option = %v", v)
	}
	if _, ok := optionValue(regen, asynq.RetentionOpt); ok {
		t.Error("regenerate tasks must not set retention")
	}
	if v, ok := optionValue(regen, asynq.MaxRetryOpt); !ok || v != 0 {
		t.Errorf("regenerate tasks must not retry, got %v", v)
	}
}
