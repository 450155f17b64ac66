package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mindscribe-go/internal/alert"
	"mindscribe-go/internal/middleware"
	"mindscribe-go/internal/model"
	"mindscribe-go/internal/pipeline"
	"mindscribe-go/internal/repository"
	"mindscribe-go/internal/service"
	"mindscribe-go/internal/session"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源，来源控制由 CORS 与 token 负责
		},
	}
)

const feedWriteTimeout = 10 * time.Second

// feedMessage 是推送给客户端的一条消息。
type feedMessage struct {
	Type    string                `json:"type"`
	Change  repository.ChangeType `json:"change,omitempty"`
	Entry   *model.JournalEntry   `json:"entry,omitempty"`
	State   *alert.State          `json:"state,omitempty"`
	Urgency alert.Urgency         `json:"urgency,omitempty"`
	Message string                `json:"message,omitempty"`
}

// FeedHandler 负责日记变更的 WebSocket 推送。
// 普通用户收到自己日记的增量；治疗师收到名下病人的告警增量，
// 并在连接期间驱动病人未分析日记的后台分析。
type FeedHandler struct {
	userService   service.UserService
	entryService  service.EntryService
	rosterService service.RosterService
	processor     pipeline.TaskHandler
	jwtManager    *token.JWTManager
	sessions      *session.Manager
}

// NewFeedHandler 创建一个新的 FeedHandler。processor 为 nil 时不做会话内分析。
func NewFeedHandler(
	userService service.UserService,
	entryService service.EntryService,
	rosterService service.RosterService,
	processor pipeline.TaskHandler,
	jwtManager *token.JWTManager,
	sessions *session.Manager,
) *FeedHandler {
	return &FeedHandler{
		userService:   userService,
		entryService:  entryService,
		rosterService: rosterService,
		processor:     processor,
		jwtManager:    jwtManager,
		sessions:      sessions,
	}
}

// Handle 处理一个传入的 WebSocket 连接，token 通过路径参数传入。
func (h *FeedHandler) Handle(c *gin.Context) {
	sc, err := middleware.Authenticate(c.Request.Context(), h.jwtManager, h.userService, c.Param("token"))
	if err != nil {
		fail(c, http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	// 会话在登出、进程退出或客户端断开时结束。
	scope := h.sessions.Open(context.Background(), sc.UID())
	defer scope.Close()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				scope.Close()
				return
			}
		}
	}()

	log.Infof("[Feed] WebSocket 连接已建立, UserID: %s, role: %s", sc.UID(), sc.User.Role)
	feed, err := h.open(scope.Context(), sc.User)
	if err != nil {
		log.Errorf("[Feed] 建立订阅失败, UserID: %s, error: %v", sc.UID(), err)
		h.write(conn, feedMessage{Type: "error", Message: "live updates are unavailable"})
		return
	}

	for ch := range feed {
		change := ch
		msg := feedMessage{Type: "change", Change: change.Type, Entry: &change.Entry}
		if change.Entry.AnalysisAlert {
			st := alert.Derive(change.Entry.AnalysisAlert, change.Entry.AlertAcknowledged, change.Entry.AlertResolved)
			msg.State = &st
			msg.Urgency = alert.UrgencyOf(st)
		}
		if err := h.write(conn, msg); err != nil {
			log.Warnf("[Feed] 推送失败，关闭连接, UserID: %s, error: %v", sc.UID(), err)
			scope.Close()
			// 排空通道直到订阅释放
			for range feed {
			}
			return
		}
	}
	h.write(conn, feedMessage{Type: "closed", Message: "session ended"})
	log.Infof("[Feed] WebSocket 会话结束, UserID: %s", sc.UID())
}

// open 按角色建立推送流，并启动会话内的后台分析。返回的通道在 ctx 结束后关闭。
func (h *FeedHandler) open(ctx context.Context, user *model.User) (<-chan repository.Change, error) {
	if user.IsTherapist() {
		return h.openTherapist(ctx, user)
	}

	sub, err := h.entryService.Subscribe(ctx, user)
	if err != nil {
		return nil, err
	}
	if h.processor != nil {
		pending, err := h.entryService.SubscribeUnanalyzed(ctx, user)
		if err != nil {
			log.Warnf("[Feed] 无法订阅待分析日记, UserID: %s, error: %v", user.UID, err)
		} else {
			go func() {
				defer pending.Close()
				pipeline.Watch(ctx, pending.C(), h.processor)
			}()
		}
	}
	out := make(chan repository.Change)
	go func() {
		defer close(out)
		defer sub.Close()
		forward(ctx, sub.C(), out)
	}()
	return out, nil
}

// openTherapist 为治疗师名下的病人建立告警推送与待分析日记的处理，
// 连接期间新注册的病人会被追加进来。
func (h *FeedHandler) openTherapist(ctx context.Context, user *model.User) (<-chan repository.Change, error) {
	// 先订阅新病人通知再读取名单，两者之间注册的病人不会遗漏。
	joins, err := h.userService.RosterJoins(ctx, user.UID)
	if err != nil {
		log.Warnf("[Feed] 无法订阅新病人通知，名单在连接期间不会更新, Therapist: %s, error: %v", user.UID, err)
	}
	patients, err := h.rosterService.PatientsOf(ctx, user.UID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(patients))
	ids := make([]string, 0, len(patients))
	for _, p := range patients {
		known[p.UID] = struct{}{}
		ids = append(ids, p.UID)
	}

	out := make(chan repository.Change)
	var wg sync.WaitGroup
	attach := func(ids []string) error {
		feed, err := h.rosterService.AlertFeed(ctx, ids)
		if err != nil {
			return err
		}
		if h.processor != nil {
			intake, err := h.rosterService.UnanalyzedIntake(ctx, ids)
			if err != nil {
				log.Warnf("[Feed] 无法订阅待分析日记, Therapist: %s, error: %v", user.UID, err)
			} else {
				go pipeline.Watch(ctx, intake, h.processor)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			forward(ctx, feed, out)
		}()
		return nil
	}
	if err := attach(ids); err != nil {
		return nil, err
	}

	go func() {
		defer close(out)
		defer wg.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case uid, ok := <-joins:
				if !ok {
					joins = nil
					continue
				}
				if _, dup := known[uid]; dup {
					continue
				}
				known[uid] = struct{}{}
				log.Infof("[Feed] 新病人加入推送, Therapist: %s, Patient: %s", user.UID, uid)
				if err := attach([]string{uid}); err != nil {
					log.Warnf("[Feed] 为新病人建立订阅失败, Therapist: %s, Patient: %s, error: %v", user.UID, uid, err)
				}
			}
		}
	}()
	return out, nil
}

// forward 把 in 的增量转发到 out，直到 in 关闭或 ctx 结束。
func forward(ctx context.Context, in <-chan repository.Change, out chan<- repository.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *FeedHandler) write(conn *websocket.Conn, msg feedMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return conn.WriteJSON(msg)
}
