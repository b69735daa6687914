package initwfn

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		want    Type
		wantErr bool
	}{
		{"default", DefaultSpec(), Gaussian, false},
		{"glorot", Spec{Type: GlorotU, Gain: 1}, GlorotU, false},
		{"zeroes", Spec{Type: Zeroes}, Zeroes, false},
		{"constant", Spec{Type: Constant, Value: 0.5}, Constant, false},
		{"uniform", Spec{Type: Uniform, Low: -1, High: 1}, Uniform, false},
		{"bad uniform", Spec{Type: Uniform, Low: 1, High: 1}, "", true},
		{"bad gaussian", Spec{Type: Gaussian}, "", true},
		{"unknown", Spec{Type: "Xavier"}, "", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			init, err := New(test.spec)
			if test.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v", test.spec)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if init.Type != test.want {
				t.Errorf("type: want(%v) have(%v)", test.want, init.Type)
			}
			if init.InitWFn() == nil {
				t.Error("nil Gorgonia InitWFn")
			}
		})
	}
}
