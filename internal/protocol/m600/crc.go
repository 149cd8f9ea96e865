package m600

import "math/bits"

// crcPoly CRC16 生成多项式（x^16 + x^15 + x^2 + 1）
const crcPoly uint16 = 0x8005

// CRC16 计算M600协议的CRC16校验值
// 算法：初值0x0000，每个输入字节先按位反转后左移8位异或进寄存器，
// 按高位优先移位8次（最高位为1时异或0x8005），全部处理完后再将16位结果按位反转。
// 校验范围只包含数据区，不包含帧头/方向/模块/命令/长度字段。
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(bits.Reverse8(b)) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return bits.Reverse16(crc)
}

// VerifyCRC16 校验数据区与接收到的CRC是否一致
func VerifyCRC16(data []byte, want uint16) error {
	if CRC16(data) != want {
		return ErrCRCMismatch
	}
	return nil
}
