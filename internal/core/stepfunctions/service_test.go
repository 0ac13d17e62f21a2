package stepfunctions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definition = `{"StartAt":"Done","States":{"Done":{"Type":"Succeed"}}}`

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	s := New("000000000000", "us-east-1")
	machineARN, _, err := s.CreateStateMachine("order-flow", definition,
		"arn:aws:iam::000000000000:role/sfn", "", nil)
	require.NoError(t, err)
	return s, machineARN
}

func TestCreateStateMachine(t *testing.T) {
	s, machineARN := newTestService(t)

	assert.Equal(t, "arn:aws:states:us-east-1:000000000000:stateMachine:order-flow", machineARN)

	machine, err := s.DescribeStateMachine(machineARN)
	require.NoError(t, err)
	assert.Equal(t, definition, machine.Definition)
	assert.Equal(t, "STANDARD", machine.Type)

	_, _, err = s.CreateStateMachine("order-flow", definition, "", "", nil)
	assert.Error(t, err, "duplicate machine")

	_, _, err = s.CreateStateMachine("", definition, "", "", nil)
	assert.Error(t, err, "missing name")
}

func TestListAndDeleteStateMachines(t *testing.T) {
	s, machineARN := newTestService(t)
	_, _, err := s.CreateStateMachine("audit-flow", definition, "", "EXPRESS", nil)
	require.NoError(t, err)

	machines := s.ListStateMachines()
	require.Len(t, machines, 2)
	assert.Equal(t, "audit-flow", machines[0].Name)
	assert.Equal(t, "order-flow", machines[1].Name)

	require.NoError(t, s.DeleteStateMachine(machineARN))
	_, err = s.DescribeStateMachine(machineARN)
	assert.Error(t, err)
}

func TestStartExecution(t *testing.T) {
	s, machineARN := newTestService(t)

	execution, err := s.StartExecution(machineARN, "run-1", `{"order":42}`)
	require.NoError(t, err)
	assert.Equal(t,
		"arn:aws:states:us-east-1:000000000000:execution:order-flow:run-1", execution.ARN)
	assert.Equal(t, "RUNNING", execution.Status)
	assert.Equal(t, `{"order":42}`, execution.Input)

	// A generated name and empty input still produce a valid execution.
	anonymous, err := s.StartExecution(machineARN, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, anonymous.Name)
	assert.Equal(t, "{}", anonymous.Input)

	_, err = s.StartExecution("arn:aws:states:us-east-1:000000000000:stateMachine:missing", "", "")
	assert.Error(t, err)
}

func TestStopExecution(t *testing.T) {
	s, machineARN := newTestService(t)
	execution, err := s.StartExecution(machineARN, "run-1", "{}")
	require.NoError(t, err)

	stopDate, err := s.StopExecution(execution.ARN, "Aborted", "operator request")
	require.NoError(t, err)
	assert.Positive(t, stopDate)

	got, err := s.DescribeExecution(execution.ARN)
	require.NoError(t, err)
	assert.Equal(t, "ABORTED", got.Status)
	require.NotNil(t, got.StoppedAt)

	// Stopping a terminal execution leaves its status alone.
	_, err = s.StopExecution(execution.ARN, "", "")
	require.NoError(t, err)
	got, err = s.DescribeExecution(execution.ARN)
	require.NoError(t, err)
	assert.Equal(t, "ABORTED", got.Status)

	_, err = s.StopExecution("arn:aws:states:us-east-1:000000000000:execution:order-flow:missing", "", "")
	assert.Error(t, err)
}

func TestListExecutionsFiltersByStatus(t *testing.T) {
	s, machineARN := newTestService(t)

	running, err := s.StartExecution(machineARN, "run-1", "{}")
	require.NoError(t, err)
	aborted, err := s.StartExecution(machineARN, "run-2", "{}")
	require.NoError(t, err)
	_, err = s.StopExecution(aborted.ARN, "", "")
	require.NoError(t, err)

	all, err := s.ListExecutions(machineARN, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyRunning, err := s.ListExecutions(machineARN, "RUNNING")
	require.NoError(t, err)
	require.Len(t, onlyRunning, 1)
	assert.Equal(t, running.ARN, onlyRunning[0].ARN)

	_, err = s.ListExecutions("arn:aws:states:us-east-1:000000000000:stateMachine:missing", "")
	assert.Error(t, err)
}

func TestSendTaskSuccess(t *testing.T) {
	s, machineARN := newTestService(t)
	execution, err := s.StartExecution(machineARN, "run-1", "{}")
	require.NoError(t, err)

	require.NoError(t, s.SendTaskSuccess(execution.ARN, `{"result":"done"}`))

	got, err := s.DescribeExecution(execution.ARN)
	require.NoError(t, err)
	assert.Equal(t, "SUCCEEDED", got.Status)
	assert.Equal(t, `{"result":"done"}`, got.Output)
	require.NotNil(t, got.StoppedAt)

	history, err := s.GetExecutionHistory(execution.ARN)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ExecutionStarted", history[0].Type)
	assert.Equal(t, "ExecutionSucceeded", history[1].Type)

	assert.Error(t, s.SendTaskSuccess("bogus-token", ""))
}

func TestSendTaskFailure(t *testing.T) {
	s, machineARN := newTestService(t)
	execution, err := s.StartExecution(machineARN, "run-1", "{}")
	require.NoError(t, err)

	require.NoError(t, s.SendTaskFailure(execution.ARN, "States.Timeout", "took too long"))

	got, err := s.DescribeExecution(execution.ARN)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.Status)

	history, err := s.GetExecutionHistory(execution.ARN)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ExecutionFailed", history[1].Type)

	assert.Error(t, s.SendTaskFailure("bogus-token", "", ""))
}

func TestSendTaskHeartbeat(t *testing.T) {
	s, machineARN := newTestService(t)
	execution, err := s.StartExecution(machineARN, "run-1", "{}")
	require.NoError(t, err)

	assert.NoError(t, s.SendTaskHeartbeat(execution.ARN))
	assert.Error(t, s.SendTaskHeartbeat("bogus-token"))
}

func TestStateMachineTags(t *testing.T) {
	s, machineARN := newTestService(t)

	require.NoError(t, s.TagResource(machineARN, map[string]string{"env": "dev"}))
	tags, err := s.ListTagsForResource(machineARN)
	require.NoError(t, err)
	assert.Equal(t, "dev", tags["env"])

	require.NoError(t, s.UntagResource(machineARN, []string{"env"}))
	tags, err = s.ListTagsForResource(machineARN)
	require.NoError(t, err)
	assert.Empty(t, tags)
}
