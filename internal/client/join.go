package client

import "sync"

// sides de la barrera de arranque.
const (
	sideTimer = iota // mínimo de splash cumplido
	sideCheck        // primer resultado del chequeo de sesión/profile
)

// join2 es una barrera de dos señales independientes: Done() se cierra
// cuando ambas llegaron, sin importar el orden. Llegadas repetidas del mismo
// lado no abren la barrera antes de tiempo.
type join2 struct {
	mu      sync.Mutex
	arrived [2]bool
	done    chan struct{}
}

func newJoin2() *join2 {
	return &join2{done: make(chan struct{})}
}

func (j *join2) arrive(side int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.arrived[side] {
		return
	}
	j.arrived[side] = true
	if j.arrived[0] && j.arrived[1] {
		close(j.done)
	}
}

func (j *join2) Done() <-chan struct{} { return j.done }
