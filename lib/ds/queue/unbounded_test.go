package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type UnboundedTestSuite struct {
	suite.Suite

	queue *Unbounded[int]
}

func TestUnboundedTestSuite(t *testing.T) {
	suite.Run(t, new(UnboundedTestSuite))
}

func (s *UnboundedTestSuite) SetupTest() {
	s.queue = NewUnbounded[int]()
}

func (s *UnboundedTestSuite) TestPushTryDequeue() {
	s.Require().NoError(s.queue.Push(1))
	s.Require().NoError(s.queue.Push(2))

	v, err := s.queue.TryDequeue()
	s.NoError(err)
	s.Equal(1, v)

	v, err = s.queue.TryDequeue()
	s.NoError(err)
	s.Equal(2, v)

	_, err = s.queue.TryDequeue()
	s.ErrorIs(err, ErrQueueEmpty)
}

func (s *UnboundedTestSuite) TestRecvBlocksUntilPush() {
	got := make(chan int)
	go func() {
		v, err := s.queue.Recv()
		s.NoError(err)
		got <- v
	}()

	// Give the receiver a moment to block.
	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(s.queue.Push(42))

	select {
	case v := <-got:
		s.Equal(42, v)
	case <-time.After(time.Second):
		s.FailNow("timeout exceeded")
	}
}

func (s *UnboundedTestSuite) TestCloseDrainsRemaining() {
	s.Require().NoError(s.queue.Push(1))
	s.Require().NoError(s.queue.Push(2))

	s.queue.Close()

	s.ErrorIs(s.queue.Push(3), ErrQueueClosed)

	v, err := s.queue.Recv()
	s.NoError(err)
	s.Equal(1, v)

	v, err = s.queue.Recv()
	s.NoError(err)
	s.Equal(2, v)

	_, err = s.queue.Recv()
	s.ErrorIs(err, ErrQueueClosed)

	_, err = s.queue.TryDequeue()
	s.ErrorIs(err, ErrQueueClosed)
}

func (s *UnboundedTestSuite) TestCloseWakesReceivers() {
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.queue.Recv()
			s.ErrorIs(err, ErrQueueClosed)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	s.queue.Close()
	s.queue.Close() // idempotent

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.FailNow("timeout exceeded")
	}
}

func (s *UnboundedTestSuite) TestConcurrentProducers() {
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.Require().NoError(s.queue.Push(i))
			}
		}()
	}
	wg.Wait()

	s.Equal(uint(producers*perProducer), s.queue.Len())
}
