package capture

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"satsuei/internal/device"
	"satsuei/internal/metric"
	"satsuei/internal/settings"
)

// Runner はシーケンス撮影の実行と状態管理を担う
// 同時に実行できるシーケンスは1つだけで、直近の実行結果は
// 次のシーケンスが受理されるまで保持される
type Runner struct {
	engine   *Engine
	registry *device.Registry
	store    *settings.Store

	settleDelay   time.Duration // 照明変更後の安定待ち時間
	postShotDelay time.Duration // 撮影後の待ち時間

	mu       sync.Mutex
	run      *sequenceRun
	cancelCh chan struct{}
	wg       sync.WaitGroup
}

// sequenceRun はシーケンス実行1回分の内部状態
type sequenceRun struct {
	id           string
	spec         SequenceSpec
	state        RunState
	levels       []int
	currentIndex int
	steps        []StepResult
	errMsg       string
	startedAt    time.Time
	finishedAt   time.Time
}

// NewRunner は新しいRunnerを作成する
func NewRunner(engine *Engine, registry *device.Registry, store *settings.Store, settleDelay, postShotDelay time.Duration) *Runner {
	return &Runner{
		engine:        engine,
		registry:      registry,
		store:         store,
		settleDelay:   settleDelay,
		postShotDelay: postShotDelay,
	}
}

// Start はシーケンス撮影を開始する
// 別のシーケンスが実行中の場合は ErrSequenceRunning を返し、実行中のものには影響しない
// 受理された場合は即座にスナップショットを返し、実行はバックグラウンドで進む
func (r *Runner) Start(spec SequenceSpec) (RunSnapshot, error) {
	if err := spec.Validate(); err != nil {
		return RunSnapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run != nil && !r.run.state.Terminal() {
		return RunSnapshot{}, ErrSequenceRunning
	}

	run := &sequenceRun{
		id:        uuid.New().String(),
		spec:      spec,
		state:     RunPending,
		levels:    spec.BrightnessLevels(),
		startedAt: time.Now(),
	}
	r.run = run
	r.cancelCh = make(chan struct{})

	// 設定は実行開始時点のスナップショットを使い続ける
	snap := r.store.Get()

	r.wg.Add(1)
	go r.execute(run, snap, r.cancelCh)

	return r.snapshotLocked(), nil
}

// Cancel は実行中のシーケンスに停止を指示する
// 実行中のシーケンスがない場合はfalseを返す
// 停止はステップ境界で判定されるため、現在のステップは完走する
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil || r.run.state.Terminal() {
		return false
	}

	select {
	case <-r.cancelCh:
		// 既にキャンセル指示済み
	default:
		close(r.cancelCh)
	}
	return true
}

// Status は直近のシーケンス実行状態を返す
// 一度も実行されていない場合は2番目の戻り値がfalseになる
func (r *Runner) Status() (RunSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		return RunSnapshot{}, false
	}
	return r.snapshotLocked(), true
}

// Stop はシャットダウン時に実行中のシーケンスを止めて終了を待つ
func (r *Runner) Stop() {
	r.Cancel()
	r.wg.Wait()
}

// execute はシーケンスの全ステップを順番に実行する
func (r *Runner) execute(run *sequenceRun, snap settings.Settings, cancelCh chan struct{}) {
	defer r.wg.Done()

	r.setState(run, RunRunning)
	log.Printf("シーケンス撮影を開始: %d ステップ (%d→%d, step %d)",
		len(run.levels), run.levels[0], run.levels[len(run.levels)-1], run.spec.Step)

	for i, level := range run.levels {
		// キャンセル判定はステップ境界でのみ行う
		select {
		case <-cancelCh:
			r.finish(run, RunCancelled, "")
			log.Printf("シーケンス撮影をキャンセルしました (%d/%d ステップ完了)", i, len(run.levels))
			return
		default:
		}

		r.setIndex(run, i)

		// 照明を設定する。照明不在は警告のみで撮影は続行する
		clamped, err := r.registry.SetBrightness(level)
		if err != nil {
			log.Printf("シーケンス中の照明設定に失敗 (輝度 %d): %v", level, err)
		}
		r.store.SetLightValue(clamped)

		// 照明の安定を待ってから撮影する
		time.Sleep(r.settleDelay)

		result, err := r.engine.capture(context.Background(), snap, clamped, snap.ShotNo)

		step := StepResult{
			Index:      i,
			Brightness: clamped,
			SavedCount: result.SavedCount,
			Cameras:    result.Cameras,
		}
		r.appendStep(run, step)
		metric.SequenceStepsTotal.Inc()

		// ストレージ書き込み失敗はシーケンス全体を中断する
		if err != nil {
			r.finish(run, RunFailed, err.Error())
			log.Printf("シーケンス撮影が失敗しました (ステップ %d): %v", i, err)
			return
		}

		time.Sleep(r.postShotDelay)
	}

	r.finish(run, RunCompleted, "")

	// 旧システムと同様、シーケンス終了後に撮影番号を1つ進める
	r.store.IncrementShot()
	log.Printf("シーケンス撮影が完了しました (%d ステップ)", len(run.levels))
}

// setState は実行状態を更新する
func (r *Runner) setState(run *sequenceRun, state RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.state = state
}

// setIndex は現在のステップ番号を更新する
func (r *Runner) setIndex(run *sequenceRun, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.currentIndex = index
}

// appendStep はステップ結果を記録する
func (r *Runner) appendStep(run *sequenceRun, step StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.steps = append(run.steps, step)
}

// finish は実行を終端状態に遷移させる
func (r *Runner) finish(run *sequenceRun, state RunState, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.state = state
	run.errMsg = errMsg
	run.finishedAt = time.Now()
}

// snapshotLocked は現在の実行状態のコピーを作る（ロック保持前提）
func (r *Runner) snapshotLocked() RunSnapshot {
	run := r.run

	levels := make([]int, len(run.levels))
	copy(levels, run.levels)
	steps := make([]StepResult, len(run.steps))
	copy(steps, run.steps)

	return RunSnapshot{
		ID:           run.id,
		Spec:         run.spec,
		State:        run.state,
		Levels:       levels,
		CurrentIndex: run.currentIndex,
		Steps:        steps,
		Error:        run.errMsg,
		StartedAt:    run.startedAt,
		FinishedAt:   run.finishedAt,
	}
}
