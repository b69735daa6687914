package trackers

// Names of the series recorded while training
const (
	ActorLoss     = "actor_loss"
	CriticLoss    = "critic_loss"
	ApproxKL      = "approx_kl"
	ApproxEntropy = "approx_entropy"
	Score         = "score"
	LearningRate  = "learning_rate"
	AverageScore  = "average_score"
)

// Recorder is a telemetry sink for named scalar time series. Steps are
// update indices for per-update series and episode indices for
// per-episode series.
type Recorder interface {
	Record(name string, value float64, step int)
}

// Nop is a Recorder that discards everything
type Nop struct{}

// Record implements the Recorder interface
func (Nop) Record(string, float64, int) {}

// Multi fans each record out to several Recorders
type Multi []Recorder

// Record implements the Recorder interface
func (m Multi) Record(name string, value float64, step int) {
	for _, r := range m {
		r.Record(name, value, step)
	}
}
