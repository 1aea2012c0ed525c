package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestOutput(jsonMode bool) (*Output, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &Output{jsonMode: jsonMode, w: &stdout, errW: &stderr}, &stdout, &stderr
}

func TestOutput_Table(t *testing.T) {
	out, stdout, _ := newTestOutput(false)

	out.Table([]string{"STATE", "SENDER"}, [][]string{
		{"DELIVERED", "Shipper"},
	})

	text := stdout.String()
	if !strings.Contains(text, "STATE") || !strings.Contains(text, "SENDER") {
		t.Errorf("missing headers: %q", text)
	}
	if !strings.Contains(text, "-----") {
		t.Errorf("missing dashes row: %q", text)
	}
	if !strings.Contains(text, "DELIVERED") {
		t.Errorf("missing data row: %q", text)
	}
}

func TestOutput_PrintJSONMode(t *testing.T) {
	out, stdout, _ := newTestOutput(true)

	out.Print([]string{"SEQ"}, [][]string{{"1"}}, NewOrderEntry{Seq: 1, OrderID: "abc"})

	var decoded NewOrderEntry
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON mode must emit valid JSON: %v", err)
	}
	if decoded.OrderID != "abc" {
		t.Errorf("unexpected payload: %+v", decoded)
	}
	if strings.Contains(stdout.String(), "SEQ") {
		t.Errorf("table headers must not leak into JSON output: %q", stdout.String())
	}
}

func TestOutput_SuccessAndErrorGoToStderr(t *testing.T) {
	out, stdout, stderr := newTestOutput(false)

	out.Success("order deleted")
	out.Error("order not found")

	if stdout.Len() != 0 {
		t.Errorf("messages must not pollute stdout: %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "order deleted") {
		t.Errorf("missing success message: %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Error: order not found") {
		t.Errorf("missing error message: %q", stderr.String())
	}
}

func TestOutput_Line(t *testing.T) {
	out, stdout, _ := newTestOutput(false)

	out.Line("Order abc has been successfully delivered.")

	if stdout.String() != "Order abc has been successfully delivered.\n" {
		t.Errorf("unexpected line output: %q", stdout.String())
	}
}
