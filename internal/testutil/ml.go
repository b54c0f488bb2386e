package testutil

import (
	"context"
	"encoding/json"
	"sync"
)

// MLCall records one request made to FakeML.
type MLCall struct {
	Op         string
	CustomerID string
	Kind       string
	FileName   string
	Data       []byte
}

// FakeML is an in-memory ml.Client. Hooks left nil succeed.
type FakeML struct {
	mu    sync.Mutex
	calls []MLCall

	TrainFn      func(customerID, kind, fileName string, data []byte) error
	PredictFn    func(customerID string) (json.RawMessage, error)
	PredictionFn func(customerID string) (json.RawMessage, error)
	InsightsFn   func(fileName string, data []byte) (string, error)
}

func (f *FakeML) record(call MLCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *FakeML) Calls() []MLCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MLCall(nil), f.calls...)
}

// CallsFor returns the ops issued for one file, in order.
func (f *FakeML) CallsFor(fileName string) []string {
	var ops []string
	for _, call := range f.Calls() {
		if call.FileName == fileName {
			ops = append(ops, call.Op)
		}
	}
	return ops
}

func (f *FakeML) TrainModel(ctx context.Context, customerID, kind, fileName string, data []byte) (string, error) {
	f.record(MLCall{Op: "train", CustomerID: customerID, Kind: kind, FileName: fileName, Data: data})
	if f.TrainFn != nil {
		if err := f.TrainFn(customerID, kind, fileName, data); err != nil {
			return "", err
		}
	}
	return "trained", nil
}

func (f *FakeML) PredictDemand(ctx context.Context, customerID string) (json.RawMessage, error) {
	f.record(MLCall{Op: "predict", CustomerID: customerID})
	if f.PredictFn != nil {
		return f.PredictFn(customerID)
	}
	return json.RawMessage(`[]`), nil
}

func (f *FakeML) GetDemandPrediction(ctx context.Context, customerID string) (json.RawMessage, error) {
	f.record(MLCall{Op: "prediction", CustomerID: customerID})
	if f.PredictionFn != nil {
		return f.PredictionFn(customerID)
	}
	return json.RawMessage(`[]`), nil
}

func (f *FakeML) GenerateInsights(ctx context.Context, fileName string, data []byte) (string, error) {
	f.record(MLCall{Op: "insights", FileName: fileName, Data: data})
	if f.InsightsFn != nil {
		return f.InsightsFn(fileName, data)
	}
	return "sales are steady", nil
}
