package payment

// acceptStreak реализует правило NETS «accepted дважды подряд = оплачено».
//
// Провайдер отвечает response_code=00 и txn_status=1 как после сканирования QR,
// так и после фактического списания, и не позволяет различить эти состояния.
// Поэтому второй подряд ответ accepted в одном потоке считается подтверждением.
// Серия живёт в одном потоке подтверждения и не разделяется между потоками.
type acceptStreak struct {
	n int
}

// Accepted отмечает очередной ответ accepted и сообщает, подряд ли он второй.
func (s *acceptStreak) Accepted() bool {
	s.n++
	return s.n >= 2
}

// Reset прерывает серию: любой другой ответ провайдера.
func (s *acceptStreak) Reset() {
	s.n = 0
}
