package pour

import (
	"errors"
	"fmt"
	"time"

	"potion_master/internal/models"
)

func (s *Sequencer) runRecipe(sess *session) {
	defer s.wg.Done()

	s.update(sess, func(p *models.Preparation) { p.State = models.PrepTaring })
	if err := s.scale.Tare(s.ctx); err != nil {
		if sess.cancelled.Load() || s.ctx.Err() != nil {
			s.finishCancelled(sess)
			return
		}
		s.finishFailed(sess, err)
		return
	}
	if !s.wait(sess, s.timing.SettleDelay) {
		s.finishCancelled(sess)
		return
	}

	for i, st := range sess.plan {
		if sess.cancelled.Load() {
			s.finishCancelled(sess)
			return
		}
		if err := s.pourStep(sess, i, st); err != nil {
			s.finishFailed(sess, err)
			return
		}
		if sess.cancelled.Load() {
			s.finishCancelled(sess)
			return
		}
	}
	s.finishCompleted(sess)
}

// pourStep opens one channel until the scale gains target ml, the session is
// stopped or the step times out. The channel is always closed on the way out.
// openChannel switches ch on unless the session was stopped. The check and
// the write happen under s.mu, which StopPour also takes to raise the flag,
// so a stop can never be followed by an open.
func (s *Sequencer) openChannel(sess *session, ch int, mark func(p *models.Preparation)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.cancelled.Load() || s.ctx.Err() != nil {
		return false, nil
	}
	mark(&sess.prep)
	return true, s.relays.SetChannel(ch, true)
}

func (s *Sequencer) pourStep(sess *session, i int, st step) error {
	start, ok := s.scale.Poll()
	degraded := !ok
	if degraded {
		start = 0
		s.log.Warnw("pour_step_no_baseline", "session", sess.prep.SessionID, "ingredient", st.ingredient)
	}
	goal := start + st.target

	opened, err := s.openChannel(sess, st.channel, func(p *models.Preparation) {
		p.State = models.PrepPouring
		p.CurrentStep = i
		p.CurrentIngredient = st.ingredient
		p.TargetWeight += st.target
		p.Degraded = p.Degraded || degraded
	})
	if err != nil {
		return fmt.Errorf("open %s on channel %d: %w", st.ingredient, st.channel, err)
	}
	if !opened {
		return nil
	}
	s.update(sess, func(p *models.Preparation) { p.IsPouring = true })
	s.log.Infow("pour_step_started", "session", sess.prep.SessionID, "ingredient", st.ingredient,
		"channel", st.channel, "target", st.target, "start_weight", start)

	current, reached, timedOut := start, false, false
	deadline := time.Now().Add(s.timing.StepTimeout)
	ticker := time.NewTicker(s.timing.Tick)
	for !sess.cancelled.Load() {
		if w, ok := s.scale.Poll(); ok {
			current = w
			if w >= goal {
				reached = true
				break
			}
		}
		if time.Now().After(deadline) {
			timedOut = true
			break
		}
		select {
		case <-s.ctx.Done():
			sess.cancelled.Store(true)
		case <-ticker.C:
		}
	}
	ticker.Stop()

	offErr := s.relays.SetChannel(st.channel, false)

	// Delivered volume is reported as measured, including negative noise.
	delivered := current - start
	s.update(sess, func(p *models.Preparation) {
		p.IsPouring = false
		p.Steps[i].Delivered = delivered
		p.Steps[i].Completed = reached
	})
	s.log.Infow("pour_step_done", "session", sess.prep.SessionID, "ingredient", st.ingredient,
		"target", st.target, "delivered", delivered, "reached", reached)

	switch {
	case offErr != nil:
		return fmt.Errorf("close %s on channel %d: %w", st.ingredient, st.channel, offErr)
	case timedOut:
		return fmt.Errorf("%w: %s after %s", models.ErrPourTimeout, st.ingredient, s.timing.StepTimeout)
	}
	return nil
}

func (s *Sequencer) runCleaning(sess *session) {
	defer s.wg.Done()

	for i, st := range sess.plan {
		if sess.cancelled.Load() {
			s.finishCancelled(sess)
			return
		}

		opened, err := s.openChannel(sess, st.channel, func(p *models.Preparation) {
			p.State = models.PrepPouring
			p.CurrentStep = i
			p.CurrentIngredient = st.ingredient
		})
		if err != nil {
			s.finishFailed(sess, fmt.Errorf("clean channel %d: %w", st.channel, err))
			return
		}
		if !opened {
			s.finishCancelled(sess)
			return
		}
		s.update(sess, func(p *models.Preparation) { p.IsPouring = true })

		ran := s.wait(sess, s.timing.CleanDuration)
		if err := s.relays.SetChannel(st.channel, false); err != nil {
			s.finishFailed(sess, fmt.Errorf("clean channel %d: %w", st.channel, err))
			return
		}
		s.update(sess, func(p *models.Preparation) {
			p.IsPouring = false
			p.Steps[i].Completed = ran
		})
		if !ran {
			s.finishCancelled(sess)
			return
		}
		if i < len(sess.plan)-1 && !s.wait(sess, s.timing.CleanPause) {
			s.finishCancelled(sess)
			return
		}
	}
	s.finishCompleted(sess)
}

// release clears the busy slot and returns the final snapshot.
func (s *Sequencer) release(sess *session, state models.PrepState, errMsg string) models.Preparation {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.prep.State = state
	sess.prep.IsPouring = false
	sess.prep.Error = errMsg
	sess.prep.Progress = progress(sess.prep.Steps)
	if s.session == sess {
		s.session = nil
	}
	return snapshot(&sess.prep)
}

func (s *Sequencer) finishCompleted(sess *session) {
	final := s.release(sess, models.PrepCompleted, "")

	var delivered float64
	for _, st := range final.Steps {
		delivered += st.Delivered
	}
	result := models.PreparationResult{
		Success:          true,
		SessionID:        final.SessionID,
		CocktailID:       final.CocktailID,
		Mode:             final.Mode,
		TotalVolume:      sess.recipe.TotalVolume(),
		DeliveredVolume:  delivered,
		PreparationTime:  time.Since(sess.started).Milliseconds(),
		ManualIngredient: sess.recipe.ManualIngredient,
		Degraded:         final.Degraded,
	}
	s.metrics.IncPour(OutcomeCompleted)
	s.log.Infow("pour_completed", "session", final.SessionID, "cocktail", final.CocktailID,
		"total", result.TotalVolume, "delivered", delivered, "elapsed_ms", result.PreparationTime)
	s.pub.Publish(models.EventPreparationComplete, result)
}

func (s *Sequencer) finishCancelled(sess *session) {
	s.relays.AllOff()
	final := s.release(sess, models.PrepCancelled, models.ErrCancelled.Error())
	s.metrics.IncPour(OutcomeCancelled)
	s.log.Infow("pour_cancelled", "session", final.SessionID, "step", final.CurrentStep)
	s.pub.Publish(models.EventPreparationUpdate, final)
}

// finishFailed is the shared unwind path for hardware faults and timeouts.
func (s *Sequencer) finishFailed(sess *session, err error) {
	s.relays.AllOff()
	final := s.release(sess, models.PrepFailed, err.Error())
	s.metrics.IncPour(OutcomeFailed)
	s.log.Errorw("pour_failed", "session", final.SessionID, "step", final.CurrentStep,
		"timeout", errors.Is(err, models.ErrPourTimeout), "err", err)
	s.pub.Publish(models.EventError, models.ErrorPayload{
		Message:   err.Error(),
		SessionID: final.SessionID,
		Timestamp: time.Now().UnixMilli(),
	})
	s.pub.Publish(models.EventPreparationUpdate, final)
}
